package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/reactq/internal/cli/output"
	"github.com/yndnr/reactq/internal/core/entity"
	"github.com/yndnr/reactq/internal/engine"
	"github.com/yndnr/reactq/internal/telemetry/metric"
)

// ErrVerifyFailed is returned when at least one check failed.
var ErrVerifyFailed = errors.New("verification failed")

// VerifyCommand checks every item envelope and optionally replays a
// full recovery.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check headers, frames and terminators of every item",
		ArgsUsage: "[CATEGORY...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "recover",
				Usage: "Also recover the whole store into an engine",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Draw recovery progress on stderr",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Report every item, not only failures",
			},
		},
		Action: withSession(verify),
	}
}

// VerifyReport is the result of verify.
type VerifyReport struct {
	Checked  int             `json:"checked" yaml:"checked"`
	Failed   int             `json:"failed" yaml:"failed"`
	Items    []ItemInfo      `json:"items" yaml:"items"`
	Recovery *RecoveryReport `json:"recovery,omitempty" yaml:"recovery,omitempty"`
}

// RecoveryReport describes a trial recovery.
type RecoveryReport struct {
	OK       bool           `json:"ok" yaml:"ok"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Entities map[string]int `json:"entities,omitempty" yaml:"entities,omitempty"`
	Duration string         `json:"duration" yaml:"duration"`
}

func verify(c *cli.Context, s *session) error {
	r, err := s.reader()
	if err != nil {
		return err
	}
	defer r.Close()

	report := &VerifyReport{Items: []ItemInfo{}}
	err = walk(r, c.Args().Slice(), func(cat, key string) error {
		info := describe(r, s.policy, cat, key)
		report.Checked++
		if info.Status != statusOK {
			report.Failed++
		}
		if info.Status != statusOK || c.Bool("all") {
			report.Items = append(report.Items, info)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if c.Bool("recover") {
		report.Recovery = s.trialRecovery(c)
	}

	if err := s.emitVerify(report); err != nil {
		return err
	}
	if report.Failed > 0 || (report.Recovery != nil && !report.Recovery.OK) {
		return ErrVerifyFailed
	}
	return nil
}

// trialRecovery loads the store into a scratch engine and unloads it.
func (s *session) trialRecovery(c *cli.Context) *RecoveryReport {
	e := engine.New(
		engine.WithPolicy(s.policy),
		engine.WithLogger(s.log),
		engine.WithMetrics(metric.NewRegistry()),
		engine.WithShardCount(s.cfg.Checkpoint.Shards),
	)

	var progress engine.Progress = engine.NoProgress
	var bar *output.ProgressBar
	if c.Bool("progress") {
		bar = output.NewProgressBar(s.errOut, "recover")
		progress = bar
	}

	report := &RecoveryReport{}
	start := time.Now()
	r, err := s.reader()
	if err == nil {
		err = e.Recover(c.Context, r, progress)
		r.Close()
	}
	if bar != nil {
		bar.Finish()
	}
	report.Duration = time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		report.Error = errorText(err)
		return report
	}

	report.OK = true
	report.Entities = make(map[string]int)
	for _, k := range entity.Kinds {
		if n := len(e.Entities(k)); n > 0 {
			report.Entities[k.String()] = n
		}
	}
	if err := e.Unload(c.Context, engine.NoProgress); err != nil {
		s.log.Warn("unload after trial recovery", "error", err)
	}
	return report
}

func (s *session) emitVerify(report *VerifyReport) error {
	if s.format != output.FormatTable {
		return s.emit(report)
	}
	if len(report.Items) > 0 {
		if err := s.emit(report.Items); err != nil {
			return err
		}
		fmt.Fprintln(s.out)
	}
	fmt.Fprintf(s.out, "checked %d items, %d failed\n", report.Checked, report.Failed)
	if rec := report.Recovery; rec != nil {
		if !rec.OK {
			fmt.Fprintf(s.out, "recovery failed after %s: %s\n", rec.Duration, rec.Error)
			return nil
		}
		fmt.Fprintf(s.out, "recovery ok in %s\n", rec.Duration)
		return s.emit(rec.Entities)
	}
	return nil
}
