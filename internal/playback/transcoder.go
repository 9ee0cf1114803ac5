package playback

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/logger"
	"github.com/nexalabs/nexa/internal/settings"
)

const segmentPollInterval = 100 * time.Millisecond

// transcoder wraps one ffmpeg subprocess writing numbered segments into a
// session work directory.
type transcoder struct {
	cmd     *exec.Cmd
	workDir string
	plan    Plan

	mu     sync.Mutex
	done   chan struct{}
	runErr error
}

func startTranscoder(ffmpegPath, inputPath, workDir string, plan Plan) (*transcoder, error) {
	args := transcodeArgs(inputPath, workDir, plan)
	cmd := exec.Command(ffmpegPath, args...)
	cmd.Dir = workDir
	if err := cmd.Start(); err != nil {
		return nil, errs.E(errs.Internal, "start ffmpeg", err)
	}
	t := &transcoder{cmd: cmd, workDir: workDir, plan: plan, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		t.mu.Lock()
		t.runErr = err
		t.mu.Unlock()
		close(t.done)
		if err != nil {
			logger.Warn("ffmpeg exited with error", "dir", workDir, "error", err)
		}
	}()
	return t, nil
}

// transcodeArgs builds the ffmpeg invocation for a remux or transcode plan.
func transcodeArgs(inputPath, workDir string, plan Plan) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}

	if plan.Mode == Transcode {
		switch plan.HardwareAcceleration {
		case settings.HWAccelVAAPI:
			args = append(args, "-hwaccel", "vaapi", "-hwaccel_output_format", "vaapi")
		case settings.HWAccelQSV:
			args = append(args, "-hwaccel", "qsv")
		case settings.HWAccelNVENC:
			args = append(args, "-hwaccel", "cuda")
		case settings.HWAccelVT:
			args = append(args, "-hwaccel", "videotoolbox")
		}
	}

	args = append(args, "-i", inputPath)

	if plan.Mode == Remux {
		args = append(args, "-c", "copy")
	} else {
		args = append(args, "-c:v", encoderFor(plan.VideoCodec, plan.HardwareAcceleration))
		if plan.ToneMapHDR {
			args = append(args, "-vf",
				"zscale=t=linear:npl=100,tonemap=tonemap=hable,zscale=p=bt709:t=bt709:m=bt709,format=yuv420p")
		}
		args = append(args, "-c:a", plan.AudioCodec, "-ac", "2")
	}

	segment := plan.SegmentDurationSeconds
	if segment <= 0 {
		segment = 6
	}
	args = append(args,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segment),
		"-segment_format", "mp4",
		"-segment_format_options", "movflags=frag_keyframe+empty_moov+default_base_moof",
		"-reset_timestamps", "1",
		filepath.Join(workDir, "seg-%d.m4s"),
	)
	return args
}

// encoderFor maps a target codec plus hardware mode to an ffmpeg encoder name.
func encoderFor(codec, hw string) string {
	switch hw {
	case settings.HWAccelVAAPI:
		return codec + "_vaapi"
	case settings.HWAccelNVENC:
		return codec + "_nvenc"
	case settings.HWAccelQSV:
		return codec + "_qsv"
	case settings.HWAccelVT:
		return codec + "_videotoolbox"
	}
	switch codec {
	case "h264":
		return "libx264"
	case "hevc":
		return "libx265"
	default:
		return codec
	}
}

// waitForSegment blocks until segment index is fully written. A segment is
// considered complete once the next segment file exists or ffmpeg has exited.
func (t *transcoder) waitForSegment(ctx context.Context, index int) ([]byte, error) {
	path := filepath.Join(t.workDir, SegmentName(index))
	next := filepath.Join(t.workDir, SegmentName(index+1))

	ticker := time.NewTicker(segmentPollInterval)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(path); err == nil {
			if _, err := os.Stat(next); err == nil {
				return os.ReadFile(path)
			}
			select {
			case <-t.done:
				return os.ReadFile(path)
			default:
			}
		} else {
			select {
			case <-t.done:
				t.mu.Lock()
				runErr := t.runErr
				t.mu.Unlock()
				return nil, errs.Ef(errs.NotFound, "segment %d was not produced (ffmpeg: %v)", index, runErr)
			default:
			}
		}
		select {
		case <-ctx.Done():
			return nil, errs.E(errs.Cancelled, "waiting for segment", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (t *transcoder) stop() {
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	<-t.done
}
