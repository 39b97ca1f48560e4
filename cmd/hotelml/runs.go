package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/tracking"
)

var runsCmd = &cobra.Command{
	Use:   "runs RUN_ID",
	Short: "print a run recorded by the sqlite tracking backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		if e.cfg.Tracking.Backend != tracking.BackendSQLite {
			return errors.NewConfigurationError("tracking.backend",
				"runs can only be read back from the sqlite backend", e.cfg.Tracking.Backend)
		}
		rec, err := tracking.OpenSQLiteRecorder(e.cfg.Tracking.SQLitePath, e.cfg.Tracking.ExperimentName)
		if err != nil {
			return err
		}
		defer rec.Close()

		run, err := rec.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		e.logger.Debug("Run loaded", log.RunIDKey, run.RunID, log.RunStatusKey, run.Status)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}
