package memory_test

import (
	"testing"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/m-mizutani/gt"
)

func TestFormatContext(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		gt.Equal(t, memory.FormatContext(nil), "")
		gt.Equal(t, memory.FormatContext([]core.RankedResult{}), "")
	})

	t.Run("renders in given order", func(t *testing.T) {
		tokyo := time.FixedZone("JST", 9*60*60)
		in := []core.RankedResult{
			{Text: "order a flat white", Sender: core.SenderUser, Timestamp: time.Date(2025, 3, 14, 18, 30, 0, 0, tokyo), Relevance: 0.4},
			{Text: "noted", Sender: core.SenderAgent, Timestamp: time.Date(2025, 3, 14, 9, 31, 5, 0, time.UTC), Relevance: 0.9},
		}

		want := "--- RELEVANT PAST CONVERSATIONS ---\n" +
			"[2025-03-14 09:30:00 UTC] user: order a flat white\n" +
			"\n" +
			"[2025-03-14 09:31:05 UTC] agent: noted\n" +
			"--- END ---"
		gt.Equal(t, memory.FormatContext(in), want)
	})

	t.Run("deterministic", func(t *testing.T) {
		in := results("x", "y")
		gt.Equal(t, memory.FormatContext(in), memory.FormatContext(in))
	})
}
