package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/raknampuna/anchor/internal/agent"
	"github.com/raknampuna/anchor/internal/llm"
	"github.com/raknampuna/anchor/internal/observe"
	"github.com/raknampuna/anchor/internal/planning"
	"github.com/raknampuna/anchor/internal/response"
	"github.com/raknampuna/anchor/internal/store"
)

var now = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func openStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "anchor.db"), store.Options{Location: time.UTC, Now: clock})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newManager(c llm.Client, s store.Store, obs observe.Observer) *Manager {
	a := agent.New(c, obs, agent.WithClock(clock))
	return NewManager(a, s, obs, Options{Location: time.UTC, Now: clock})
}

func reply(s string) llm.Client {
	return llm.ClientFunc(func(context.Context, string) (string, error) { return s, nil })
}

const callMom = `RESPONSE: 3pm for Mom, locked in.
INFO: {"task": "Call Mom", "message_type": "ad_hoc", "timing": {"duration_minutes": 30, "preferred_time": "15:00", "constraints": []}}`

func TestHandle_SavesAndLinks(t *testing.T) {
	s := openStore(t)
	m := newManager(reply(callMom), s, nil)

	out, err := m.Handle(context.Background(), "u1", "call mom at 3")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Reply != "3pm for Mom, locked in." {
		t.Errorf("Reply = %q", out.Reply)
	}
	if !strings.Contains(out.Link, "dates=20261015T150000Z%2F20261015T153000Z") {
		t.Errorf("Link = %q", out.Link)
	}
	if !strings.Contains(out.Text(), out.Link) {
		t.Errorf("Text() should carry the link: %q", out.Text())
	}

	saved, err := s.Load(context.Background(), "u1", now)
	if err != nil || saved == nil {
		t.Fatalf("Load = (%v, %v)", saved, err)
	}
	if saved.CurrentTask != "Call Mom" || *saved.Timing.PreferredTime != "15:00" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestHandle_SeedsModeFromYesterday(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	yesterday := now.AddDate(0, 0, -1)
	if err := s.Save(ctx, "u1", yesterday, &planning.Context{Mode: planning.ModeEveningReflection, LastInteraction: yesterday}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m := newManager(reply("not the format"), s, nil)

	out, err := m.Handle(ctx, "u1", "morning")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Reply != response.FallbackText {
		t.Errorf("Reply = %q", out.Reply)
	}
	if out.Context.Mode != planning.ModeEveningReflection {
		t.Errorf("Mode = %s, want yesterday's evening_reflection", out.Context.Mode)
	}
}

func TestHandle_FirstContactIsAdHoc(t *testing.T) {
	m := newManager(reply("not the format"), openStore(t), nil)
	out, err := m.Handle(context.Background(), "u1", "hi")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Context.Mode != planning.ModeAdHoc || out.Context.CurrentTask != "" {
		t.Errorf("Context = %+v", out.Context)
	}
}

// counter replies with the number in the prompt's "Task:" line plus one, so
// every lost update shows up as a missing increment.
var counter = llm.ClientFunc(func(_ context.Context, prompt string) (string, error) {
	n := 0
	for _, line := range strings.Split(prompt, "\n") {
		if v, ok := strings.CutPrefix(line, "Task: "); ok {
			n, _ = strconv.Atoi(v)
			break
		}
	}
	return fmt.Sprintf("RESPONSE: count %d\nINFO: {\"task\": \"%d\", \"message_type\": \"ad_hoc\", \"timing\": null}", n+1, n+1), nil
})

func TestHandle_SerializesPerUser(t *testing.T) {
	s := openStore(t)
	m := newManager(counter, s, nil)
	ctx := context.Background()

	const turns = 20
	var wg sync.WaitGroup
	for range turns {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := m.Handle(ctx, "alice", "again"); err != nil {
				t.Errorf("Handle: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := m.Handle(ctx, "bob", "again"); err != nil {
				t.Errorf("Handle: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, user := range []string{"alice", "bob"} {
		c, err := m.Current(ctx, user)
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if c.CurrentTask != strconv.Itoa(turns) {
			t.Errorf("%s: task = %q, want %d (lost updates)", user, c.CurrentTask, turns)
		}
	}
	if n := m.locks.held(); n != 0 {
		t.Errorf("%d locks still held", n)
	}
}

// failingStore fails every call with an unavailable error.
type failingStore struct {
	store.Store
	saves int
}

var errDown = fmt.Errorf("loading context: %w: connection refused", store.ErrUnavailable)

func (f *failingStore) Load(context.Context, string, time.Time) (*planning.Context, error) {
	return nil, errDown
}

func (f *failingStore) Save(context.Context, string, time.Time, *planning.Context) error {
	f.saves++
	return errDown
}

func TestHandle_StoreUnavailable(t *testing.T) {
	rec := &observe.Recorder{}
	fs := &failingStore{}
	m := newManager(reply(callMom), fs, rec)

	out, err := m.Handle(context.Background(), "u1", "call mom at 3")

	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if out.Reply == "" {
		t.Error("a reply is owed even when storage is down")
	}
	if fs.saves != 0 {
		t.Errorf("Save called %d times after a failed load", fs.saves)
	}
	errs := rec.Of(observe.EventError)
	if len(errs) != 1 || errs[0].Kind != observe.KindStorageUnavailable {
		t.Errorf("error events = %+v", errs)
	}
}

// saveFailStore loads fine and fails on save.
type saveFailStore struct {
	store.Store
}

func (f saveFailStore) Save(context.Context, string, time.Time, *planning.Context) error {
	return errDown
}

func TestHandle_SaveFailure(t *testing.T) {
	rec := &observe.Recorder{}
	m := newManager(reply(callMom), saveFailStore{openStore(t)}, rec)

	out, err := m.Handle(context.Background(), "u1", "call mom")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if out.Reply != "3pm for Mom, locked in." {
		t.Errorf("Reply = %q", out.Reply)
	}
	if len(rec.Of(observe.EventError)) != 1 {
		t.Errorf("want one storage error event")
	}
}

// corruptBackends open a store with undecodable records already planted for
// u1: an unknown mode yesterday and broken timing JSON today.
func corruptBackends() map[string]func(t *testing.T) store.Store {
	yesterday := now.AddDate(0, 0, -1)
	return map[string]func(t *testing.T) store.Store{
		"sqlite": func(t *testing.T) store.Store {
			path := filepath.Join(t.TempDir(), "anchor.db")
			s, err := store.OpenSQLite(path, store.Options{Location: time.UTC, Now: clock})
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			db, err := sql.Open("sqlite", path)
			if err != nil {
				t.Fatalf("opening raw db: %v", err)
			}
			defer db.Close()
			rows := []struct {
				day          time.Time
				mode, timing string
			}{
				{yesterday, `"planning"`, "null"},
				{now, `"ad_hoc"`, `{"preferred_time": `},
			}
			for _, r := range rows {
				_, err := db.Exec(
					"INSERT INTO contexts (key, user_id, day, mode, timing) VALUES (?, ?, ?, ?, ?)",
					store.Key("u1", r.day), "u1", r.day.Format(planning.DateFormat), r.mode, r.timing)
				if err != nil {
					t.Fatalf("planting record: %v", err)
				}
			}
			return s
		},
		"redis": func(t *testing.T) store.Store {
			mr := miniredis.RunT(t)
			mr.SetTime(now)
			s, err := store.NewRedis(context.Background(), "redis://"+mr.Addr(), store.Options{Location: time.UTC, Now: clock})
			if err != nil {
				t.Fatalf("NewRedis: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			mr.HSet(store.Key("u1", yesterday), store.FieldMode, `"planning"`)
			mr.HSet(store.Key("u1", now), store.FieldTiming, `{"preferred_time": `)
			return s
		},
	}
}

func TestHandle_ReplacesCorruptRecords(t *testing.T) {
	for name, open := range corruptBackends() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			rec := &observe.Recorder{}
			m := newManager(reply(callMom), s, rec)
			ctx := context.Background()

			if _, err := m.Handle(ctx, "u1", "call mom at 3"); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			saved, err := s.Load(ctx, "u1", now)
			if err != nil || saved == nil {
				t.Fatalf("Load = (%v, %v), want today's record saved", saved, err)
			}
			if saved.CurrentTask != "Call Mom" {
				t.Errorf("saved = %+v", saved)
			}

			errs := rec.Of(observe.EventError)
			if len(errs) != 2 {
				t.Fatalf("error events = %+v, want one per corrupt record", errs)
			}
			for _, e := range errs {
				if e.Kind != observe.KindParseFailure || !errors.Is(e.Err, store.ErrCorrupt) {
					t.Errorf("event = %+v, want parse_failure wrapping ErrCorrupt", e)
				}
			}
		})
	}
}

func TestCorruptRecord_CurrentAndSetMode(t *testing.T) {
	for name, open := range corruptBackends() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			m := newManager(reply(callMom), s, nil)
			ctx := context.Background()

			if c, err := m.Current(ctx, "u1"); err != nil || c != nil {
				t.Errorf("Current = (%v, %v), want corrupt record read as absent", c, err)
			}
			if err := m.SetMode(ctx, "u1", planning.ModeEveningReflection); err != nil {
				t.Fatalf("SetMode: %v", err)
			}
			c, err := m.Current(ctx, "u1")
			if err != nil || c == nil || c.Mode != planning.ModeEveningReflection {
				t.Errorf("Current = (%+v, %v), want evening_reflection", c, err)
			}
		})
	}
}

func TestHandle_ConflictHasNoLink(t *testing.T) {
	raw := `RESPONSE: That overlaps your standup.
INFO: {"task": "Call Mom", "message_type": "ad_hoc", "timing": {"preferred_time": "09:00", "constraints": [{"start_time": "09:15", "end_time": "09:30", "description": "standup"}]}}`
	m := newManager(reply(raw), openStore(t), nil)

	out, err := m.Handle(context.Background(), "u1", "call mom at 9")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Link != "" || out.Decision == nil || out.Decision.Approved {
		t.Errorf("Outcome = %+v, want unapproved decision without link", out)
	}
	if out.Text() != out.Reply {
		t.Errorf("Text() = %q", out.Text())
	}
}

func TestCheckIn(t *testing.T) {
	var prompt string
	c := llm.ClientFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "RESPONSE: Good morning! What's the one thing today?\nINFO: {\"task\": null, \"message_type\": \"morning_planning\", \"timing\": null}", nil
	})
	s := openStore(t)
	m := newManager(c, s, nil)

	out, err := m.CheckIn(context.Background(), "u1", planning.ModeMorningPlanning)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if !strings.Contains(prompt, "Mode: morning_planning") || !strings.Contains(prompt, "morning check-in") {
		t.Errorf("check-in prompt not seeded with the mode:\n%s", prompt)
	}
	if out.Context.Mode != planning.ModeMorningPlanning {
		t.Errorf("Mode = %s", out.Context.Mode)
	}

	if _, err := m.CheckIn(context.Background(), "u1", "brunch"); !errors.Is(err, planning.ErrUnknownMode) {
		t.Errorf("err = %v, want ErrUnknownMode", err)
	}
}

func TestSetModeCurrentClear(t *testing.T) {
	m := newManager(reply(callMom), openStore(t), nil)
	ctx := context.Background()

	if c, err := m.Current(ctx, "u1"); err != nil || c != nil {
		t.Fatalf("Current = (%v, %v), want nothing yet", c, err)
	}
	if err := m.SetMode(ctx, "u1", planning.ModeReplanning); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	c, err := m.Current(ctx, "u1")
	if err != nil || c == nil || c.Mode != planning.ModeReplanning {
		t.Fatalf("Current = (%+v, %v)", c, err)
	}
	if err := m.SetMode(ctx, "u1", "brunch"); !errors.Is(err, planning.ErrUnknownMode) {
		t.Errorf("err = %v, want ErrUnknownMode", err)
	}
	if err := m.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c, _ := m.Current(ctx, "u1"); c != nil {
		t.Errorf("context survived Clear: %+v", c)
	}
}

func TestLocks_Exclusive(t *testing.T) {
	var l Locks
	unlock := l.Lock("k")
	acquired := make(chan struct{})
	go func() {
		u := l.Lock("k")
		close(acquired)
		u()
	}()
	select {
	case <-acquired:
		t.Fatal("second Lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	// Other keys are independent.
	l.Lock("other")()
	unlock()
	<-acquired
}
