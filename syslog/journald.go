//go:build !windows

package syslog

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/saqw3r/InetMonitor/model"
)

// JournaldQuerier implements Querier over journalctl, the same external
// process the teacher's LogsCollector shells out to for per-service error
// rates (collector/logs.go). It is a development/Linux stand-in for the
// Windows Event Log API the reference system targets.
type JournaldQuerier struct{}

func (JournaldQuerier) Query(ctx context.Context, channel string, start, end time.Time) ([]model.LogEvent, error) {
	args := []string{
		"--no-pager",
		"--output=short-unix",
		"--since=@" + strconv.FormatInt(start.Unix(), 10),
		"--until=@" + strconv.FormatInt(end.Unix(), 10),
	}
	if channel != "" {
		args = append(args, "-t", channel)
	}

	cmd := exec.CommandContext(ctx, "journalctl", args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var events []model.LogEvent
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		sec, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		events = append(events, model.LogEvent{
			ProviderName: channel,
			Timestamp:    time.Unix(int64(sec), 0),
			Message:      fields[1],
		})
	}
	_ = cmd.Wait()
	return events, nil
}
