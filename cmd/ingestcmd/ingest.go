// Package ingestcmd implements one-shot content unit submission from a JSON
// file or stdin.
package ingestcmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/analyst/cmd/common"
	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/ingest"
	"github.com/jonesrussell/analyst/internal/topicmap"
)

// Command returns the ingest subcommand.
func Command() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Submit one content unit through the ingestion gate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, file)
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "JSON payload file ('-' for stdin)")
	return cmd
}

func run(cmd *cobra.Command, file string) error {
	payload, err := readPayload(file)
	if err != nil {
		return err
	}

	cfg, log, err := common.Bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	store, err := common.OpenLocal(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	client, err := common.NewLLM(cfg, log)
	if err != nil {
		return err
	}

	redisClient := common.NewRedis(cfg)
	defer func() {
		_ = redisClient.Close()
	}()

	mapper := topicmap.New(store, client, cfg.Pipeline.ConfidenceFloor, log)
	cache := ingest.NewDedupCache(redisClient, cfg.Redis.TTL, log)
	gate := ingest.NewGate(store, mapper, cache, common.NewTracker(cfg, log), cfg.Pipeline, nil, log)

	receipt, err := gate.Submit(cmd.Context(), *payload)
	if err != nil {
		return err
	}

	fmt.Printf("outcome: %s\n", receipt.Outcome)
	if receipt.UnitID != "" {
		fmt.Printf("unit_id: %s\n", receipt.UnitID)
	}
	for _, m := range receipt.Mappings {
		fmt.Printf("topic: %s (%.2f)\n", m.TopicID, m.Score)
	}
	return nil
}

func readPayload(file string) (*domain.NewUnit, error) {
	var reader io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open payload: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		reader = f
	}

	var payload domain.NewUnit
	if err := json.NewDecoder(reader).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &payload, nil
}
