package ffmpeg

import (
	"testing"
	"time"
)

func TestParseProbe(t *testing.T) {
	out := probeOutput{
		Streams: []probeStream{
			{CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080, AvgFrameRate: "60000/1001"},
			{CodecType: "audio", CodecName: "aac", SampleRate: "48000"},
			{CodecType: "audio", CodecName: "opus", SampleRate: "48000"}, // secondary track ignored
		},
		Format: probeFormat{Duration: "3723.500000"},
	}
	info, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Duration != 3723500*time.Millisecond {
		t.Fatalf("duration = %s", info.Duration)
	}
	if info.VideoCodec != "h264" || info.Width != 1920 || info.Height != 1080 {
		t.Fatalf("video stream mismatch: %+v", info)
	}
	if !info.HasAudio || info.AudioCodec != "aac" || info.SampleRate != 48000 {
		t.Fatalf("audio stream mismatch: %+v", info)
	}
	if fps := info.FrameRate; fps < 59.9 || fps > 60 {
		t.Fatalf("frame rate = %v", fps)
	}
}

func TestParseProbe_NoVideoStream(t *testing.T) {
	out := probeOutput{
		Streams: []probeStream{{CodecType: "audio", CodecName: "mp3"}},
		Format:  probeFormat{Duration: "60.0"},
	}
	if _, err := parseProbe(out); err == nil {
		t.Fatal("expected error for audio-only input")
	}
}

func TestParseProbe_BadDuration(t *testing.T) {
	out := probeOutput{
		Streams: []probeStream{{CodecType: "video", CodecName: "h264"}},
		Format:  probeFormat{Duration: "N/A"},
	}
	if _, err := parseProbe(out); err == nil {
		t.Fatal("expected error for unusable duration")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"0/0", 0},
		{"25", 25},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); got != tt.want {
			t.Fatalf("parseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := parseFrameRate("24000/1001"); got < 23.9 || got > 24 {
		t.Fatalf("parseFrameRate(24000/1001) = %v", got)
	}
}

func TestFmtSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0.000"},
		{1500 * time.Millisecond, "1.500"},
		{90*time.Second + 123*time.Millisecond, "90.123"},
	}
	for _, tt := range tests {
		if got := fmtSeconds(tt.d); got != tt.want {
			t.Fatalf("fmtSeconds(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := escapeFilterPath(`C:\clips\001.srt`)
	want := `C\:\\clips\\001.srt`
	if got != want {
		t.Fatalf("escapeFilterPath = %q, want %q", got, want)
	}
	if got := escapeFilterPath("/tmp/001.srt"); got != "/tmp/001.srt" {
		t.Fatalf("plain path changed: %q", got)
	}
}

func TestCodecArgs(t *testing.T) {
	webm := codecArgs("clip.webm")
	if webm[1] != "libvpx-vp9" {
		t.Fatalf("webm should use vp9, got %v", webm)
	}
	mp4 := codecArgs("clip.mp4")
	if mp4[1] != "libx264" {
		t.Fatalf("mp4 should use x264, got %v", mp4)
	}
	mkv := codecArgs("clip.mkv")
	if mkv[1] != "libx264" {
		t.Fatalf("mkv should use x264, got %v", mkv)
	}
}
