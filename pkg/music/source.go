// Package music 音乐点播：yt-dlp 拉流、ffmpeg 转码、opus 编码按播放速率下发。
package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/logger"
)

// Source 把口语查询词解析成可播放的音频流
type Source interface {
	// Resolve 搜索并开始拉流，返回曲目名和 16kHz 单声道 s16le PCM 流。
	// 调用方负责 Close。
	Resolve(ctx context.Context, query string) (title string, pcm io.ReadCloser, err error)
}

const defaultYouTubeAPIBaseURL = "https://www.googleapis.com/youtube/v3"

// YTDLSource 通过 yt-dlp 与 ffmpeg 子进程拉流。配了 YouTube Data API
// Key 时优先走 API 搜索（快），否则用 yt-dlp 的 ytsearch（慢但零配置）。
type YTDLSource struct {
	YtdlpBin   string // 默认 yt-dlp
	FfmpegBin  string // 默认 ffmpeg
	APIKey     string
	APIBaseURL string // 测试注入用，默认 YouTube Data API v3

	SampleRate  int           // 默认 16000
	Channels    int           // 默认 1
	MaxDuration time.Duration // 超长截断，0 不限
}

func (s *YTDLSource) ytdlp() string {
	if s.YtdlpBin != "" {
		return s.YtdlpBin
	}
	return "yt-dlp"
}

func (s *YTDLSource) ffmpeg() string {
	if s.FfmpegBin != "" {
		return s.FfmpegBin
	}
	return "ffmpeg"
}

func (s *YTDLSource) sampleRate() int {
	if s.SampleRate > 0 {
		return s.SampleRate
	}
	return 16000
}

func (s *YTDLSource) channels() int {
	if s.Channels > 0 {
		return s.Channels
	}
	return 1
}

func (s *YTDLSource) Resolve(ctx context.Context, query string) (string, io.ReadCloser, error) {
	title, pageURL, err := s.lookup(ctx, query)
	if err != nil {
		return "", nil, err
	}
	logger.Info("music resolved",
		zap.String("title", title),
		zap.String("url", pageURL))

	stream, err := s.openStream(ctx, pageURL)
	if err != nil {
		return "", nil, err
	}
	return title, stream, nil
}

// lookup 把查询词变成 (标题, 页面地址)
func (s *YTDLSource) lookup(ctx context.Context, query string) (string, string, error) {
	if strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://") {
		return s.ytdlpMetadata(ctx, query)
	}
	if s.APIKey != "" {
		title, videoID, err := s.apiSearch(ctx, query)
		if err == nil {
			return title, "https://www.youtube.com/watch?v=" + videoID, nil
		}
		logger.Warn("youtube api search failed, falling back to ytsearch",
			zap.String("query", query),
			zap.Error(err))
	}
	return s.ytdlpMetadata(ctx, "ytsearch:"+query)
}

// ytSearchList YouTube Data API v3 search.list 响应子集
type ytSearchList struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

func (s *YTDLSource) apiSearch(ctx context.Context, query string) (title, videoID string, err error) {
	base := s.APIBaseURL
	if base == "" {
		base = defaultYouTubeAPIBaseURL
	}
	var result ytSearchList
	err = requests.URL(base+"/search").
		Param("part", "snippet").
		Param("type", "video").
		Param("maxResults", "1").
		Param("q", query).
		Param("key", s.APIKey).
		ToJSON(&result).
		Fetch(ctx)
	if err != nil {
		return "", "", fmt.Errorf("youtube search request failed: %w", err)
	}
	if len(result.Items) == 0 || result.Items[0].ID.VideoID == "" {
		return "", "", fmt.Errorf("no result for %q", query)
	}
	return result.Items[0].Snippet.Title, result.Items[0].ID.VideoID, nil
}

// ytdlpMeta yt-dlp --dump-json 输出的字段子集
type ytdlpMeta struct {
	Title      string  `json:"title"`
	WebpageURL string  `json:"webpage_url"`
	Duration   float64 `json:"duration"`
}

func (s *YTDLSource) ytdlpMetadata(ctx context.Context, searchQuery string) (string, string, error) {
	cmd := exec.CommandContext(ctx, s.ytdlp(), "--dump-json", "--no-download", searchQuery)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return "", "", fmt.Errorf("yt-dlp metadata failed: %s", strings.TrimSpace(msg))
	}

	var meta ytdlpMeta
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return "", "", fmt.Errorf("yt-dlp metadata parse failed: %w", err)
	}
	title := meta.Title
	if title == "" {
		title = "Unknown"
	}
	pageURL := meta.WebpageURL
	if pageURL == "" {
		pageURL = searchQuery
	}
	return title, pageURL, nil
}

// openStream 启动 yt-dlp | ffmpeg 管道，输出 s16le PCM
func (s *YTDLSource) openStream(ctx context.Context, pageURL string) (io.ReadCloser, error) {
	fetch := exec.CommandContext(ctx, s.ytdlp(),
		"-f", "bestaudio", "--no-warnings", "-o", "-", pageURL)

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(s.sampleRate()),
		"-ac", strconv.Itoa(s.channels()),
	}
	if s.MaxDuration > 0 {
		args = append(args, "-t", strconv.Itoa(int(s.MaxDuration.Seconds())))
	}
	args = append(args, "pipe:1")
	transcode := exec.CommandContext(ctx, s.ffmpeg(), args...)

	fetchOut, err := fetch.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp stdout pipe: %w", err)
	}
	transcode.Stdin = fetchOut

	pcmOut, err := transcode.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	if err := fetch.Start(); err != nil {
		return nil, fmt.Errorf("start yt-dlp: %w", err)
	}
	if err := transcode.Start(); err != nil {
		_ = fetch.Process.Kill()
		_ = fetch.Wait()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &procStream{out: pcmOut, fetch: fetch, transcode: transcode}, nil
}

// procStream 两级子进程的 PCM 输出，Close 负责收尸
type procStream struct {
	out        io.ReadCloser
	fetch      *exec.Cmd
	transcode  *exec.Cmd
	closedOnce bool
}

func (p *procStream) Read(b []byte) (int, error) {
	return p.out.Read(b)
}

func (p *procStream) Close() error {
	if p.closedOnce {
		return nil
	}
	p.closedOnce = true
	_ = p.out.Close()
	if p.fetch.Process != nil {
		_ = p.fetch.Process.Kill()
	}
	if p.transcode.Process != nil {
		_ = p.transcode.Process.Kill()
	}
	_ = p.fetch.Wait()
	_ = p.transcode.Wait()
	return nil
}
