package platform_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/guarzo/platformapi/common/model"
	"github.com/guarzo/platformapi/modules/cache"
	"github.com/guarzo/platformapi/modules/invalidate"
	"github.com/guarzo/platformapi/modules/platform"
)

type serviceHarness struct {
	*harness
	svc    platform.PlatformService
	drafts *cache.DraftStore
}

func newServiceHarness(t *testing.T, handler http.HandlerFunc) *serviceHarness {
	t.Helper()
	h := newHarness(t, handler)
	registry := invalidate.NewRegistry(nil, h.stores.Entry, h.stores.Session, h.stores.Persistent)
	drafts := cache.NewDraftStore(cache.NewMemoryStorage(), "v1", cache.WithClock(h.clock.Now))
	return &serviceHarness{
		harness: h,
		svc:     platform.NewPlatformService(h.client, registry, drafts, nil),
		drafts:  drafts,
	}
}

// fakeAPI answers the handful of endpoints the service uses.
func fakeAPI(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api")
		switch {
		case r.Method == http.MethodGet && path == "/stats":
			fmt.Fprint(w, `{"users":5,"contests":2,"courses":3,"mentors":1}`)
		case r.Method == http.MethodGet && path == "/courses":
			fmt.Fprint(w, `{"items":[{"id":42,"title":"Go"}],"total":1}`)
		case r.Method == http.MethodGet && path == "/courses/42":
			fmt.Fprint(w, `{"id":42,"title":"Go"}`)
		case r.Method == http.MethodPatch && path == "/courses/42":
			var in map[string]any
			_ = json.NewDecoder(r.Body).Decode(&in)
			fmt.Fprintf(w, `{"id":42,"title":%q}`, in["title"])
		case r.Method == http.MethodGet && path == "/contests":
			if r.URL.Query().Get("limit") != "10" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			fmt.Fprint(w, `{"items":[{"id":1,"title":"Open"}],"total":1}`)
		case r.Method == http.MethodGet && path == "/contests/1":
			fmt.Fprint(w, `{"id":1,"title":"Open"}`)
		case r.Method == http.MethodGet && path == "/mentors":
			fmt.Fprint(w, `[{"id":9,"name":"Ada"}]`)
		case r.Method == http.MethodGet && path == "/teams/7":
			fmt.Fprint(w, `{"id":7,"name":"Gophers","member_ids":[1,2]}`)
		case r.Method == http.MethodPost && path == "/teams":
			body, _ := io.ReadAll(r.Body)
			var in model.TeamInput
			_ = json.Unmarshal(body, &in)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":8,"name":%q}`, in.Name)
		case r.Method == http.MethodPost && path == "/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"Not found"}`)
		}
	}
}

func TestPlatformService_UpdateCourseInvalidatesCourses(t *testing.T) {
	h := newServiceHarness(t, fakeAPI(t))
	ctx := context.Background()

	if _, err := h.svc.GetCourse(ctx, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.svc.ListCourses(ctx, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.svc.GetStats(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, k := range []string{"course:42", "api:/courses?limit=10", "api:/stats"} {
		if !h.stores.Entry.Has(k) {
			t.Fatalf("expected %s cached before the update", k)
		}
	}

	title := "Go, revised"
	course, err := h.svc.UpdateCourse(ctx, 42, model.CourseUpdate{Title: &title})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if course.Title != title {
		t.Errorf("unexpected course %+v", course)
	}

	for _, k := range []string{"course:42", "api:/courses?limit=10"} {
		if h.stores.Entry.Has(k) {
			t.Errorf("%s should have been invalidated", k)
		}
		if _, ok := h.stores.Session.Get(ctx, k); ok {
			t.Errorf("%s should have been removed from the session tier", k)
		}
	}
	if !h.stores.Entry.Has("api:/stats") {
		t.Error("api:/stats should be untouched")
	}
}

func TestPlatformService_ReadsAreCached(t *testing.T) {
	h := newServiceHarness(t, fakeAPI(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		page, err := h.svc.ListContests(ctx, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Total != 1 || page.Items[0].Title != "Open" {
			t.Errorf("unexpected page %+v", page)
		}
		contest, err := h.svc.GetContest(ctx, 1)
		if err != nil || contest.ID != 1 {
			t.Fatalf("unexpected contest %+v, err %v", contest, err)
		}
		mentors, err := h.svc.ListMentors(ctx)
		if err != nil || len(mentors) != 1 || mentors[0].Name != "Ada" {
			t.Fatalf("unexpected mentors %+v, err %v", mentors, err)
		}
		team, err := h.svc.GetTeam(ctx, 7)
		if err != nil || len(team.MemberIDs) != 2 {
			t.Fatalf("unexpected team %+v, err %v", team, err)
		}
	}
	if n := h.network.Load(); n != 4 {
		t.Errorf("expected 4 network calls, got %d", n)
	}
	if _, ok := h.stores.Persistent.Get(ctx, "api:/mentors"); !ok {
		t.Error("expected mentors in the persistent tier")
	}
}

func TestPlatformService_NotFound(t *testing.T) {
	h := newServiceHarness(t, fakeAPI(t))
	_, err := h.svc.GetContest(context.Background(), 404)
	if err == nil || err.Error() != "Not found" {
		t.Fatalf("unexpected error %v", err)
	}
	if st := h.client.Stats(); st.NotFound != 1 {
		t.Errorf("expected NotFound=1, got %+v", st)
	}
}

func TestPlatformService_CreateTeamDiscardsDraft(t *testing.T) {
	h := newServiceHarness(t, fakeAPI(t))
	ctx := context.Background()

	if _, err := h.svc.GetTeam(ctx, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	draft := model.TeamInput{Name: "Rustaceans", MemberIDs: []int64{3}}
	if res := h.svc.SaveTeamDraft(ctx, draft); !res.Stored {
		t.Fatalf("draft not stored: %v", res.Err)
	}
	loaded, ok := h.svc.LoadTeamDraft(ctx)
	if !ok || loaded.Name != "Rustaceans" {
		t.Fatalf("unexpected draft %+v (ok=%v)", loaded, ok)
	}

	team, err := h.svc.CreateTeam(ctx, loaded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team.ID != 8 || team.Name != "Rustaceans" {
		t.Errorf("unexpected team %+v", team)
	}
	if _, ok := h.svc.LoadTeamDraft(ctx); ok {
		t.Error("draft should be discarded after create")
	}
	if h.stores.Entry.Has("team:7") {
		t.Error("team views should be invalidated after create")
	}
}

func TestPlatformService_CreateTeamRequiresName(t *testing.T) {
	h := newServiceHarness(t, fakeAPI(t))
	if _, err := h.svc.CreateTeam(context.Background(), model.TeamInput{}); err == nil {
		t.Fatal("expected validation error")
	}
	if n := h.network.Load(); n != 0 {
		t.Errorf("expected no network call, got %d", n)
	}
}

func TestPlatformService_LogoutClearsEverything(t *testing.T) {
	h := newServiceHarness(t, fakeAPI(t))
	ctx := context.Background()

	if _, err := h.svc.GetStats(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.svc.ListMentors(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.svc.SaveTeamDraft(ctx, model.TeamInput{Name: "x"})

	if err := h.svc.Logout(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.stores.Entry.Len() != 0 {
		t.Error("expected entry tier empty after logout")
	}
	if _, ok := h.stores.Persistent.Get(ctx, "api:/mentors"); ok {
		t.Error("expected persistent tier cleared after logout")
	}
	if _, ok := h.svc.LoadTeamDraft(ctx); ok {
		t.Error("expected drafts cleared after logout")
	}
}

func TestPlatformService_LogoutClearsOnServerError(t *testing.T) {
	h := newServiceHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()
	h.stores.Entry.Set("api:/stats", json.RawMessage(`{}`), time.Minute)

	if err := h.svc.Logout(ctx); err == nil {
		t.Fatal("expected the server error to be returned")
	}
	if h.stores.Entry.Len() != 0 {
		t.Error("expected local state cleared even though logout failed")
	}
}

func TestPlatformService_NilDrafts(t *testing.T) {
	h := newHarness(t, fakeAPI(t))
	svc := platform.NewPlatformService(h.client, nil, nil, nil)
	if res := svc.SaveTeamDraft(context.Background(), model.TeamInput{Name: "x"}); res.Stored {
		t.Error("expected no draft storage")
	}
	if _, ok := svc.LoadTeamDraft(context.Background()); ok {
		t.Error("expected no draft")
	}
}
