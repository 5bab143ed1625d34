package compare

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elementsproject/lnregtest/log"
)

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Infof(format string, v ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}
func (l *recordingLogger) Debugf(format string, v ...interface{}) {}
func (l *recordingLogger) Errorf(format string, v ...interface{}) {}

func networkViewFixture() map[string]interface{} {
	return map[string]interface{}{
		"graph_diameter":          0,
		"avg_out_degree":          3.142857142857143,
		"max_out_degree":          6,
		"num_nodes":               7,
		"num_channels":            11,
		"total_network_capacity":  "48197520",
		"avg_channel_size":        4381592.7272727275,
		"min_channel_size":        "2100000",
		"max_channel_size":        "6300000",
		"median_channel_size_sat": "5049504",
		"num_zombie_chans":        "0",
	}
}

func TestCompareEqualStructures(t *testing.T) {
	assert.True(t, Compare(networkViewFixture(), networkViewFixture(), false))
}

func TestCompareNestedMaps(t *testing.T) {
	graph := map[string]interface{}{
		"A": map[string]interface{}{
			"1": map[string]interface{}{
				"remote_name":   "C",
				"capacity":      4500000,
				"local_balance": 3990950,
				"initiator":     true,
			},
		},
	}
	assert.True(t, Compare(graph, graph, false))
}

func TestCompareDetectsChangedLeaf(t *testing.T) {
	expected := networkViewFixture()
	actual := networkViewFixture()
	actual["num_channels"] = 12

	assert.False(t, Compare(expected, actual, false))
}

func TestCompareReportsDiffPath(t *testing.T) {
	logger := &recordingLogger{}
	log.SetLogger(logger)
	defer log.SetLogger(nil)

	expected := networkViewFixture()
	actual := networkViewFixture()
	actual["num_channels"] = 12

	assert.False(t, Compare(expected, actual, true))

	require.NotEmpty(t, logger.lines)
	assert.Contains(t, logger.lines[0], "num_channels")
}

func TestCompareFloatTolerance(t *testing.T) {
	assert.True(t, Compare(3.142857142857143, 3.142857142857, false))
	assert.False(t, Compare(3.142857142857143, 3.15, false))
}

func TestCompareFloatExpectationAgainstInt(t *testing.T) {
	assert.True(t, Compare(4.0, 4, false))
}

func TestCompareIntegersAcrossTypes(t *testing.T) {
	assert.True(t, Compare(int64(11), uint32(11), false))
	assert.False(t, Compare(int64(11), uint32(12), false))
}

func TestCompareNumericStringsStayStrings(t *testing.T) {
	// Quoted amounts are identifiers, they never coerce to numbers.
	assert.True(t, Compare("48197520", "48197520", false))
	assert.False(t, Compare("48197520", 48197520, false))
	assert.False(t, Compare("48197520", "48197521", false))
	assert.False(t, Compare("0100", "100", false))
}

func TestCompareKeyOrderIrrelevant(t *testing.T) {
	assert.True(t, Compare(
		map[string]interface{}{"a": 1, "b": 2},
		map[string]interface{}{"b": 2, "a": 1},
		false,
	))
}

func TestCompareMissingAndExtraKeys(t *testing.T) {
	assert.False(t, Compare(
		map[string]interface{}{"a": 1, "b": 2},
		map[string]interface{}{"a": 1},
		false,
	))
	assert.False(t, Compare(
		map[string]interface{}{"a": 1},
		map[string]interface{}{"a": 1, "b": 2},
		false,
	))
}

func TestCompareSequences(t *testing.T) {
	assert.True(t, Compare([]int{1, 2, 3}, []int{1, 2, 3}, false))
	assert.False(t, Compare([]int{1, 2, 3}, []int{1, 3, 2}, false))
	assert.False(t, Compare([]int{1, 2}, []int{1, 2, 3}, false))
}

func TestCompareStructAgainstMapByJsonTag(t *testing.T) {
	type view struct {
		RemoteName   string  `json:"remote_name"`
		Capacity     int64   `json:"capacity"`
		AvgOutDegree float64 `json:"avg_out_degree"`
	}

	expected := map[string]interface{}{
		"remote_name":    "B",
		"capacity":       3600000,
		"avg_out_degree": 3.142857142857143,
	}
	actual := view{RemoteName: "B", Capacity: 3600000, AvgOutDegree: 3.142857142857}

	assert.True(t, Compare(expected, actual, false))
}

func TestCompareContinuesAfterFirstMismatch(t *testing.T) {
	logger := &recordingLogger{}
	log.SetLogger(logger)
	defer log.SetLogger(nil)

	expected := map[string]interface{}{"a": 1, "b": 2, "c": 3}
	actual := map[string]interface{}{"a": 9, "b": 2, "c": 9}

	assert.False(t, Compare(expected, actual, true))
	assert.Len(t, logger.lines, 2)
}

func TestFormatDict(t *testing.T) {
	out := FormatDict(map[string]interface{}{"a": 1})
	assert.True(t, strings.Contains(out, "\"a\": 1"))
}
