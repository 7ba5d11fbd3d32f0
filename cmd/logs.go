// -- cmd/logs.go --
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

func newLogsCommand() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the event transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.Integrations.Transcript.File

			if !follow {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("opening transcript: %w", err)
				}
				defer f.Close()
				_, err = io.Copy(cmd.OutOrStdout(), f)
				return err
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    true,
				ReOpen:    true,
				MustExist: true,
				Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("failed to tail transcript: %w", err)
			}
			defer t.Cleanup()

			for {
				select {
				case <-cmd.Context().Done():
					t.Stop()
					return nil
				case line, ok := <-t.Lines:
					if !ok {
						return nil
					}
					if line.Err != nil {
						return line.Err
					}
					fmt.Fprintln(cmd.OutOrStdout(), line.Text)
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the transcript as events arrive")
	return cmd
}
