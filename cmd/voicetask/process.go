package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicetask/internal/capture"
	"github.com/fyrsmithlabs/voicetask/internal/pipeline"
)

var (
	processMime string
	recordMime  string
)

// chunkSize is the stdin read size for record.
const chunkSize = 32 << 10

var processCmd = &cobra.Command{
	Use:   "process <audio-file>",
	Short: "Transcribe an audio file and extract its tasks",
	Long: `Run an audio file through transcription and task extraction. New tasks
are added to the local list and, when configured, to the workspace.

Examples:
  voicetask process note.webm
  voicetask process --mime audio/wav memo.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record audio from stdin and process it",
	Long: `Stream audio from stdin into a recording until end of input or the
maximum recording duration, then process it.

Examples:
  arecord -f cd -t wav | voicetask record --mime audio/wav`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	processCmd.Flags().StringVar(&processMime, "mime", "", "audio MIME type (detected from the file when empty)")
	recordCmd.Flags().StringVar(&recordMime, "mime", "audio/webm", "audio MIME type of the stream")
}

func runProcess(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := capture.FromFile(args[0], processMime, a.captureOptions())
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(pipeline.ErrorMessage(a.session.Language, err)))
		return err
	}
	return a.process(cmd, rec)
}

func runRecord(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	recorder := capture.NewRecorder(a.captureOptions(), a.logger)
	sess, err := recorder.Start(recordMime)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("Recording... (end input to stop)"))

	if err := pump(cmd, sess, cmd.InOrStdin()); err != nil {
		_ = recorder.Cancel()
		return err
	}

	rec, err := recorder.Stop()
	if err != nil {
		return err
	}
	if rec.Truncated {
		a.logger.Info("recording truncated", zap.String("recording.id", rec.ID), zap.Duration("duration", rec.Duration))
	}
	return a.process(cmd, rec)
}

// pump copies r into the session until EOF, a recording limit or
// cancellation of the command context.
func pump(cmd *cobra.Command, sess *capture.Session, r io.Reader) error {
	ctx := cmd.Context()
	buf := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.Done():
			return nil
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := sess.Write(buf[:n]); werr != nil {
				if errors.Is(werr, capture.ErrTooLarge) || errors.Is(werr, capture.ErrSessionStopped) {
					return nil
				}
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}
}

func (a *app) process(cmd *cobra.Command, rec capture.Recording) error {
	res, err := a.processor.Process(cmd.Context(), a.session, rec)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(res.Status))
		return err
	}
	renderResult(cmd.OutOrStdout(), res)
	return nil
}
