package filler

import (
	"context"
	"testing"
)

func TestOnTranscription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
		in   string
		want string
	}{
		{name: "english fillers", opts: DefaultOptions(), in: "um so, like, I think uh we should go", want: "I think we should go"},
		{name: "you know", opts: DefaultOptions(), in: "it is, you know, fine", want: "it is, fine"},
		{name: "like without comma kept", opts: DefaultOptions(), in: "I like it", want: "I like it"},
		{name: "filler inside word kept", opts: DefaultOptions(), in: "grab the umbrella", want: "grab the umbrella"},
		{name: "case insensitive", opts: DefaultOptions(), in: "UMM okay", want: "okay"},
		{name: "chinese fillers", opts: DefaultOptions(), in: "嗯嗯我觉得呃可以", want: "我觉得可以"},
		{name: "chinese single ah kept", opts: DefaultOptions(), in: "好啊", want: "好啊"},
		{name: "chinese phrase", opts: DefaultOptions(), in: "怎么说呢，这个方案不错", want: "这个方案不错"},
		{name: "korean standalone", opts: DefaultOptions(), in: "음 저는 좋아요", want: "저는 좋아요"},
		{name: "korean repeated", opts: DefaultOptions(), in: "그 그 뭐 좋아요", want: "좋아요"},
		{name: "korean syllable in word kept", opts: DefaultOptions(), in: "그래서 좋아요", want: "그래서 좋아요"},
		{name: "english disabled", opts: Options{Chinese: true, Korean: true}, in: "um okay", want: "um okay"},
		{name: "space before comma", opts: DefaultOptions(), in: "yes uh , done", want: "yes, done"},
		{name: "blank unchanged", opts: DefaultOptions(), in: "  ", want: "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := New(tt.opts).OnTranscription(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("OnTranscription(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
