package node

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// TIMEOUT bounds every readiness poll loop. Slow machines (CI) can
// raise it via the SLOW_MACHINE environment variable.
var TIMEOUT = setTimeout()

func setTimeout() time.Duration {
	if os.Getenv("SLOW_MACHINE") == "1" {
		return 420 * time.Second
	}
	return 150 * time.Second
}

// WriteConfig writes a key=value daemon config file, with an optional
// extra section for the regtest chain parameters.
func WriteConfig(filename string, config map[string]string, sectionConfig map[string]string, sectionName string) error {
	b := []byte{}
	for k, v := range config {
		b = append(b, []byte(fmt.Sprintf("%s=%s\n", k, v))...)
	}
	if sectionConfig != nil {
		b = append(b, []byte(fmt.Sprintf("[%s]\n", sectionName))...)
		for k, v := range sectionConfig {
			b = append(b, []byte(fmt.Sprintf("%s=%s\n", k, v))...)
		}
	}
	return os.WriteFile(filename, b, os.ModePerm)
}

// ReadConfig reads a key=value daemon config file back into a map.
func ReadConfig(filename string) (map[string]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	conf := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "#") || !strings.Contains(scanner.Text(), "=") {
			continue
		}
		parts := strings.Split(scanner.Text(), "=")
		conf[parts[0]] = parts[1]
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return conf, nil
}
