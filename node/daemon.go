package node

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DaemonProcess wraps a long-lived external process (bitcoind, lnd)
// with captured, prefix-tagged output that readiness checks can grep.
type DaemonProcess struct {
	CmdLine []string
	Cmd     *exec.Cmd
	StdOut  *lockedWriter
	StdErr  *lockedWriter

	prefix    string
	isRunning bool
}

func NewDaemonProcess(cmdline []string, prefix string) *DaemonProcess {
	return &DaemonProcess{
		CmdLine: cmdline,
		StdOut:  &lockedWriter{w: new(strings.Builder), prefix: []byte(fmt.Sprintf("%s: ", prefix))},
		StdErr:  &lockedWriter{w: new(strings.Builder), prefix: []byte(fmt.Sprintf("%s: ", prefix))},
		prefix:  prefix,
	}
}

func (d *DaemonProcess) Run() error {
	cmd := exec.Command(d.CmdLine[0], d.CmdLine[1:]...)
	d.Cmd = cmd
	cmd.Stdout = d.StdOut
	cmd.Stderr = d.StdErr

	err := cmd.Start()
	if err != nil {
		return fmt.Errorf("cmd.Start() %w", err)
	}

	d.isRunning = true
	return nil
}

// Kill terminates the process and reaps it so that no orphan is left
// behind on the failure path.
func (d *DaemonProcess) Kill() {
	if d.isRunning {
		d.Cmd.Process.Kill()
		d.Cmd.Wait()
		d.isRunning = false
	}
}

func (d *DaemonProcess) IsRunning() bool {
	return d.isRunning
}

func (d *DaemonProcess) HasLog(regex string) (bool, error) {
	rx, err := regexp.Compile(regex)
	if err != nil {
		return false, fmt.Errorf("Compile(regex) %w", err)
	}

	scanner := bufio.NewScanner(strings.NewReader(d.StdOut.String()))
	for scanner.Scan() {
		match := rx.Find([]byte(scanner.Text()))
		if match != nil {
			return true, nil
		}
	}
	return false, nil
}

func (d *DaemonProcess) WaitForLog(regex string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return fmt.Errorf("timeout reached while waiting for `%s` in logs", regex)
		default:
			ok, err := d.HasLog(regex)
			if err != nil {
				return fmt.Errorf("HasLog() %w", err)
			}
			if ok {
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (d *DaemonProcess) Prefix() string {
	return d.prefix
}

type lockedWriter struct {
	sync.RWMutex

	prefix []byte
	buf    []byte
	w      io.Writer
}

func (w *lockedWriter) Write(b []byte) (n int, err error) {
	w.Lock()
	defer w.Unlock()
	w.buf = append(w.buf, w.prefix...)
	w.buf = append(w.buf, b...)
	return w.w.Write(b)
}

func (w *lockedWriter) String() string {
	w.RLock()
	defer w.RUnlock()

	return string(w.buf)
}
