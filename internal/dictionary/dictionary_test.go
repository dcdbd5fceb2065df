package dictionary_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voiceflow/internal/dictionary"
	"github.com/MrWong99/voiceflow/internal/session"
	sttmock "github.com/MrWong99/voiceflow/pkg/provider/stt/mock"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (n *recordingNotifier) SendDictionary(words []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, words)
	return n.err
}

func TestUpdate_Normalizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, nil},
		{"blank entries", []string{"", "  "}, nil},
		{"trim and dedupe", []string{" Kubernetes ", "gRPC", "Kubernetes"}, []string{"Kubernetes", "gRPC"}},
		{"case sensitive", []string{"Go", "go"}, []string{"Go", "go"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := dictionary.New()
			if err := d.Update(tc.in); err != nil {
				t.Fatalf("Update: %v", err)
			}
			if got := d.Words(); !slices.Equal(got, tc.want) {
				t.Errorf("Words() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWords_ReturnsCopy(t *testing.T) {
	t.Parallel()
	d := dictionary.New("alpha", "beta")
	w := d.Words()
	w[0] = "mutated"
	if got := d.Words()[0]; got != "alpha" {
		t.Errorf("Words()[0] = %q after caller mutation, want alpha", got)
	}
}

func TestNilContext(t *testing.T) {
	t.Parallel()
	var d *dictionary.Context
	if d.Words() != nil || d.Len() != 0 {
		t.Error("nil Context should behave as empty")
	}
}

func TestAddRemoveClear_Notify(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	d := dictionary.New("a")
	d.SetNotifier(n)

	if err := d.Add("b", "a", "c"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := d.Remove(" b "); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := d.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	want := [][]string{{"a", "b", "c"}, {"a", "c"}, {}}
	if len(n.calls) != len(want) {
		t.Fatalf("notifications = %v, want %v", n.calls, want)
	}
	for i := range want {
		if !slices.Equal(n.calls[i], want[i]) {
			t.Errorf("notification %d = %v, want %v", i, n.calls[i], want[i])
		}
	}
}

func TestUpdate_StoresDespiteNotifyError(t *testing.T) {
	t.Parallel()

	boom := errors.New("closed")
	d := dictionary.New()
	d.SetNotifier(&recordingNotifier{err: boom})
	if err := d.Update([]string{"x"}); !errors.Is(err, boom) {
		t.Errorf("Update error = %v, want %v", err, boom)
	}
	if got := d.Words(); !slices.Equal(got, []string{"x"}) {
		t.Errorf("Words() = %v, want [x]", got)
	}
}

// An update while recording is sent on the live connection at once, and the
// next session's Start carries the new words.
func TestUpdate_LiveSessionAndNextStart(t *testing.T) {
	t.Parallel()

	conn := sttmock.NewConn()
	dict := dictionary.New()
	client := session.New(&sttmock.Dialer{Conns: []*sttmock.Conn{conn}},
		session.WithDictionary(dict),
		session.WithFinalizeTimeout(time.Second),
	)
	dict.SetNotifier(client)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sess, err := client.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := dict.Update([]string{"Kubernetes"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	w := conn.WaitWrites(2, 2*time.Second)
	if len(w) < 2 {
		t.Fatalf("writes = %d, want 2", len(w))
	}
	var update struct {
		Type  string   `json:"type"`
		Words []string `json:"words"`
	}
	if err := json.Unmarshal(w[1].Data, &update); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if update.Type != "update_dictionary" || !slices.Equal(update.Words, []string{"Kubernetes"}) {
		t.Errorf("second message = %s, want update_dictionary [Kubernetes]", w[1].Data)
	}

	if _, err := client.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	conn.PushText(`{"type":"final","text":"done"}`)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := sess.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if _, err := client.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	w = conn.WaitWrites(4, 2*time.Second)
	if len(w) < 4 {
		t.Fatalf("writes = %d, want 4", len(w))
	}
	var start struct {
		Type       string   `json:"type"`
		Dictionary []string `json:"dictionary"`
	}
	if err := json.Unmarshal(w[3].Data, &start); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if start.Type != "start" || !slices.Equal(start.Dictionary, []string{"Kubernetes"}) {
		t.Errorf("next start = %s, want dictionary [Kubernetes]", w[3].Data)
	}
}

func TestAdd_Concurrent(t *testing.T) {
	t.Parallel()

	const writers = 16
	d := dictionary.New()
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Add(fmt.Sprintf("w%d", i)); err != nil {
				t.Errorf("Add: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := d.Len(); got != writers {
		t.Errorf("Len() = %d after %d concurrent adds, want %d (words %v)", got, writers, writers, d.Words())
	}
}

// The last list forwarded to the notifier must be the stored one, whatever
// order concurrent writers ran in.
func TestUpdate_ConcurrentNotifyOrder(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	d := dictionary.New()
	d.SetNotifier(n)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = d.Update([]string{fmt.Sprintf("u%d", i)})
			} else {
				err = d.Add(fmt.Sprintf("a%d", i))
			}
			if err != nil {
				t.Errorf("mutation %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) != 32 {
		t.Fatalf("notifications = %d, want 32", len(n.calls))
	}
	if last, stored := n.calls[len(n.calls)-1], d.Words(); !slices.Equal(last, stored) {
		t.Errorf("last notification = %v, stored = %v", last, stored)
	}
}
