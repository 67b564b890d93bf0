// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// FFmpegDecoder shells out to ffprobe and ffmpeg. Frames are streamed back as
// raw rgb24 so no intermediate files are written.
type FFmpegDecoder struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpegDecoder uses the given binaries, defaulting to the ones on PATH.
func NewFFmpegDecoder(ffmpegPath, ffprobePath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegDecoder{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, d.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, model.FrameErrorf("ffprobe %s: %v", path, err)
	}
	info, err := parseProbe(out)
	if err != nil {
		return nil, model.FrameErrorf("ffprobe %s: %v", path, err)
	}
	info.Path = path
	return info, nil
}

func parseProbe(data []byte) (*VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("unreadable probe output: %w", err)
	}
	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := &VideoInfo{Width: s.Width, Height: s.Height}
		info.FPS = parseRate(s.AvgFrameRate)
		if info.FPS <= 0 {
			info.FPS = parseRate(s.RFrameRate)
		}
		durText := probe.Format.Duration
		if durText == "" || durText == "N/A" {
			durText = s.Duration
		}
		secs, err := strconv.ParseFloat(durText, 64)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("video has no usable duration %q", durText)
		}
		info.Duration, _ = model.SecondsToDuration(secs)
		if info.Width <= 0 || info.Height <= 0 {
			return nil, errors.New("video stream has no dimensions")
		}
		return info, nil
	}
	return nil, errors.New("no video stream")
}

// parseRate reads ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	dv, err := strconv.ParseFloat(den, 64)
	if err != nil || dv == 0 {
		return 0
	}
	return n / dv
}

// outputSize scales to width keeping the aspect ratio; both sides are even
// as required by most pixel formats.
func outputSize(info *VideoInfo, width int) (int, int) {
	if width <= 0 || width >= info.Width {
		width = info.Width
	}
	height := int(float64(info.Height)*float64(width)/float64(info.Width)/2+0.5) * 2
	width = width / 2 * 2
	return max(width, 2), max(height, 2)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (d *FFmpegDecoder) DecodeInterval(ctx context.Context, info *VideoInfo, span model.TimeSpan, rate float64, width, maxFrames int) ([]image.Image, error) {
	w, h := outputSize(info, width)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", seconds(span.Start),
		"-t", seconds(span.Duration()),
		"-i", info.Path,
		"-an",
		"-vf", fmt.Sprintf("fps=%s,scale=%d:%d", strconv.FormatFloat(rate, 'f', 6, 64), w, h),
		"-frames:v", strconv.Itoa(maxFrames),
		"-f", "rawvideo", "-pix_fmt", "rgb24", "-",
	}
	return d.run(ctx, args, w, h, maxFrames)
}

func (d *FFmpegDecoder) DecodeAt(ctx context.Context, info *VideoInfo, at time.Duration, width int) (image.Image, error) {
	w, h := outputSize(info, width)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", seconds(at),
		"-i", info.Path,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", w, h),
		"-frames:v", "1",
		"-f", "rawvideo", "-pix_fmt", "rgb24", "-",
	}
	frames, err := d.run(ctx, args, w, h, 1)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, model.FrameErrorf("no frame at %s in %s", model.FormatTimestamp(at), info.Path)
	}
	return frames[0], nil
}

func (d *FFmpegDecoder) run(ctx context.Context, args []string, w, h, maxFrames int) ([]image.Image, error) {
	cmd := exec.CommandContext(ctx, d.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, model.FrameErrorf("ffmpeg pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, model.FrameErrorf("starting ffmpeg: %v", err)
	}
	frames, readErr := ReadRawFrames(stdout, w, h, maxFrames)
	// Drain anything left so ffmpeg can exit.
	_, _ = io.Copy(io.Discard, stdout)
	if err := cmd.Wait(); err != nil {
		return nil, model.FrameErrorf("ffmpeg: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	if readErr != nil {
		return nil, model.FrameErrorf("reading frames: %v", readErr)
	}
	return frames, nil
}

// ReadRawFrames reads packed rgb24 frames of w x h from r until EOF or
// maxFrames frames. A trailing partial frame is ignored.
func ReadRawFrames(r io.Reader, w, h, maxFrames int) ([]image.Image, error) {
	frameSize := w * h * 3
	buf := make([]byte, frameSize)
	var out []image.Image
	for maxFrames <= 0 || len(out) < maxFrames {
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return out, err
		}
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i, j := 0, 0; i < frameSize; i, j = i+3, j+4 {
			img.Pix[j] = buf[i]
			img.Pix[j+1] = buf[i+1]
			img.Pix[j+2] = buf[i+2]
			img.Pix[j+3] = 0xff
		}
		out = append(out, img)
	}
	return out, nil
}
