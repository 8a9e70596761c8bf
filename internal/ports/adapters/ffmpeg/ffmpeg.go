package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/forPelevin/comcrop/internal/procrun"
	"github.com/forPelevin/comcrop/internal/types"
)

type Runner interface {
	Run(ctx context.Context, c procrun.Command) (procrun.Result, error)
}

// Codecs used when segments are joined with the concat protocol. The list-file
// mode always stream-copies.
type Codecs struct {
	Video        string
	Audio        string
	AudioBitrate string
}

type Adapter struct {
	ffmpeg string
	run    Runner
	codecs Codecs
}

func New(ffmpegPath string, run Runner, codecs Codecs) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if codecs.Video == "" {
		codecs.Video = "libx264"
	}
	if codecs.Audio == "" {
		codecs.Audio = "libmp3lame"
	}
	return &Adapter{ffmpeg: ffmpegPath, run: run, codecs: codecs}
}

func (a *Adapter) ExtractSegment(ctx context.Context, input string, start, duration float64, out string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", input,
		"-ss", fmtSeconds(start),
	}
	if duration != types.ToEnd {
		args = append(args, "-t", fmtSeconds(duration))
	}
	args = append(args, "-c", "copy", "-y", out)
	return a.exec(ctx, "extract segment", args)
}

func (a *Adapter) Concat(ctx context.Context, mode types.ConcatMode, parts []string, listFile, out string) error {
	if len(parts) == 0 {
		return errors.New("ffmpeg concat: no segment files")
	}
	switch mode {
	case types.ConcatList:
		if err := writeList(listFile, parts); err != nil {
			return err
		}
		defer os.Remove(listFile)
		return a.exec(ctx, "concat", []string{
			"-hide_banner", "-loglevel", "error", "-nostdin",
			"-safe", "0", "-f", "concat", "-i", listFile,
			"-c:v", "copy", "-c:a", "copy",
			"-map_metadata", "0", "-max_muxing_queue_size", "1000",
			"-y", out,
		})
	case types.ConcatProtocol:
		args := []string{
			"-hide_banner", "-loglevel", "error", "-nostdin",
			"-i", "concat:" + strings.Join(parts, "|"),
			"-map", "0:v", "-map", "0:a",
			"-c:v", a.codecs.Video, "-c:a", a.codecs.Audio,
		}
		if a.codecs.AudioBitrate != "" {
			args = append(args, "-b:a", a.codecs.AudioBitrate)
		}
		args = append(args, "-map_metadata", "0", "-max_muxing_queue_size", "1000", "-y", out)
		return a.exec(ctx, "concat", args)
	default:
		return fmt.Errorf("ffmpeg concat: unknown mode %q", mode)
	}
}

func (a *Adapter) exec(ctx context.Context, step string, args []string) error {
	res, err := a.run.Run(ctx, procrun.Command{Name: a.ffmpeg, Args: args})
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w", step, err)
	}
	if res.ExitCode != 0 {
		return &types.ToolError{Tool: "ffmpeg", Step: step, ExitCode: res.ExitCode, Output: res.Output}
	}
	return nil
}

// writeList writes a concat demuxer script. Single quotes inside a path are
// closed, escaped and reopened.
func writeList(path string, parts []string) error {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', -1, 64)
}
