package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var closeRoundFlags = struct {
	fractalID int
}{}

// closeRoundCommand закрывает открытый раунд вручную, не дожидаясь дедлайна.
func closeRoundCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close-round",
		Short: "Close the open round of a fractal now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if closeRoundFlags.fractalID <= 0 {
				return errors.New("--fractal must be a positive fractal id")
			}
			logger := commonRun()
			cfg := loadConfig(logger)

			ctx := context.Background()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to initialize application", slog.Any("error", err))
				os.Exit(1)
			}
			// close() доставляет события (Telegram, архив) до выхода
			defer a.close()

			result, err := a.tournament.CloseRound(ctx, closeRoundFlags.fractalID)
			if err != nil {
				return fmt.Errorf("close round of fractal %d: %w", closeRoundFlags.fractalID, err)
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&closeRoundFlags.fractalID, "fractal", 0, "fractal id")
	_ = cmd.MarkFlagRequired("fractal")
	return cmd
}
