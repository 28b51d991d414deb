package assignments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacriatura/rota/internal/calendar"
	"github.com/novacriatura/rota/internal/catalog"
)

// memRepo is an in-memory Repository that enforces the same store
// constraints as the SQL implementations.
type memRepo struct {
	mu      sync.Mutex
	rows    []Assignment
	seq     int64
	failAll error
}

func (m *memRepo) HasAssignment(_ context.Context, member string, date calendar.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return false, m.failAll
	}
	for _, a := range m.rows {
		if a.Member == member && a.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) AssignmentsForDate(_ context.Context, date calendar.Date) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for _, a := range m.rows {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) LastAssignmentForMember(_ context.Context, member string) (Assignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		best  Assignment
		found bool
	)
	for _, a := range m.rows {
		if a.Member != member {
			continue
		}
		if !found || a.Date.After(best.Date) || (a.Date == best.Date && a.Seq > best.Seq) {
			best, found = a, true
		}
	}
	return best, found, nil
}

func (m *memRepo) AssignmentForMemberAndDate(_ context.Context, member string, date calendar.Date) (Assignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.Member == member && a.Date == date {
			return a, true, nil
		}
	}
	return Assignment{}, false, nil
}

func (m *memRepo) InsertAssignment(_ context.Context, in InsertParams) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := 0
	for _, a := range m.rows {
		if a.Member == in.Member && a.Date == in.Date {
			return Assignment{}, ErrDuplicateAssignment
		}
		if a.Date == in.Date && a.RoleID == in.RoleID {
			used++
		}
	}
	if in.Capacity > 0 && used >= in.Capacity {
		return Assignment{}, ErrCapacityExceeded
	}
	m.seq++
	a := Assignment{ID: in.ID, Seq: m.seq, Date: in.Date, Member: in.Member, RoleID: in.RoleID, CreatedAt: in.CreatedAt}
	m.rows = append(m.rows, a)
	return a, nil
}

func (m *memRepo) DeleteAllAssignments(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.rows))
	m.rows = nil
	return n, nil
}

func (m *memRepo) ListAssignments(context.Context) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]Assignment(nil), m.rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memRepo) seed(member, date, roleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.rows = append(m.rows, Assignment{
		ID:     uuid.New(),
		Seq:    m.seq,
		Date:   calendar.MustParse(date),
		Member: member,
		RoleID: roleID,
	})
}

type recordingNotifier struct {
	mu      sync.Mutex
	changed []calendar.Date
	resets  int
}

func (n *recordingNotifier) AssignmentsChanged(_ context.Context, date calendar.Date) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, date)
}

func (n *recordingNotifier) AssignmentsReset(context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets++
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingRecorder) RecordAllocation(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func fiveRoleCatalog(t *testing.T, restrictions map[string][]string) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Role{
		{ID: "A", Title: "A", Image: "/a.png"},
		{ID: "B", Title: "B", Image: "/b.png"},
		{ID: "C", Title: "C", Image: "/c.png"},
		{ID: "D", Title: "D", Image: "/d.png"},
		{ID: "E", Title: "E", Image: "/e.png", Multi: true},
	}, nil, restrictions)
	require.NoError(t, err)
	return cat
}

// spyChooser records the candidate count and returns a fixed index.
type spyChooser struct {
	idx   int
	calls []int
}

func (s *spyChooser) choose(n int) int {
	s.calls = append(s.calls, n)
	return s.idx
}

func newTestService(repo Repository, cat *catalog.Catalog, choose Chooser) *Service {
	return NewService(repo, cat, ServiceConfig{
		Chooser: choose,
		Now:     func() time.Time { return time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC) },
	})
}

func roleIDs(roles []catalog.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.ID
	}
	return out
}

func TestAllocateEmptyHistory(t *testing.T) {
	repo := &memRepo{}
	spy := &spyChooser{idx: 2}
	svc := newTestService(repo, fiveRoleCatalog(t, nil), spy.choose)

	res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.NoError(t, err)
	assert.Equal(t, []int{5}, spy.calls)
	assert.Equal(t, "C", res.Role.ID)
	assert.Equal(t, "C", res.Assignment.RoleID)
	assert.Equal(t, "X", res.Assignment.Member)
	assert.Equal(t, "2026-03-07", res.Assignment.Date.String())
	assert.False(t, res.IsRepeated)
	assert.NotEqual(t, uuid.Nil, res.Assignment.ID)
}

func TestAllocateWithRealRandomStaysInCatalog(t *testing.T) {
	cat := fiveRoleCatalog(t, nil)
	for i := 0; i < 50; i++ {
		svc := NewService(&memRepo{}, cat, ServiceConfig{})
		res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
		require.NoError(t, err)
		assert.Contains(t, []string{"A", "B", "C", "D", "E"}, res.Role.ID)
		assert.False(t, res.IsRepeated)
	}
}

func TestAllocateIdempotentRejection(t *testing.T) {
	repo := &memRepo{}
	svc := newTestService(repo, fiveRoleCatalog(t, nil), nil)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Allocate(ctx, AllocateRequest{Member: "X", Date: "2026-03-07"})
		require.ErrorIs(t, err, ErrAlreadyAssigned)
	}
	_, err = svc.Allocate(ctx, AllocateRequest{Member: "X", Date: "2026-03-07T18:30:00Z"})
	require.ErrorIs(t, err, ErrAlreadyAssigned)
	assert.Len(t, repo.rows, 1)
}

func TestAllocateNeverReturnsFullMultiRole(t *testing.T) {
	repo := &memRepo{}
	repo.seed("m1", "2026-03-07", "E")
	repo.seed("m2", "2026-03-07", "E")
	repo.seed("m3", "2026-03-07", "E")
	cat := fiveRoleCatalog(t, nil)

	for idx := 0; idx < 4; idx++ {
		spy := &spyChooser{idx: idx}
		svc := newTestService(&memRepo{rows: append([]Assignment(nil), repo.rows...), seq: repo.seq}, cat, spy.choose)
		res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "Y", Date: "2026-03-07"})
		require.NoError(t, err)
		assert.NotEqual(t, "E", res.Role.ID)
		assert.Equal(t, []int{4}, spy.calls)
	}
}

func TestAllocateRestrictedMemberWithoutCapacity(t *testing.T) {
	repo := &memRepo{}
	repo.seed("Someone", "2026-03-07", "A")
	svc := newTestService(repo, fiveRoleCatalog(t, map[string][]string{"Ana": {"A"}}), nil)

	_, err := svc.Allocate(context.Background(), AllocateRequest{Member: "Ana", Date: "2026-03-07"})
	require.ErrorIs(t, err, ErrNoCapacityAvailable)

	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, ErrNoCapacityAvailable, allocErr.Kind)
}

func TestAllocateRespectsAllowList(t *testing.T) {
	cat := fiveRoleCatalog(t, map[string][]string{"Ana": {"B", "E"}})
	for idx := 0; idx < 2; idx++ {
		spy := &spyChooser{idx: idx}
		svc := newTestService(&memRepo{}, cat, spy.choose)
		res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "Ana", Date: "2026-03-07"})
		require.NoError(t, err)
		assert.Contains(t, []string{"B", "E"}, res.Role.ID)
		assert.Equal(t, []int{2}, spy.calls)
	}
}

func TestAllocateNormalisesMemberName(t *testing.T) {
	cat := fiveRoleCatalog(t, map[string][]string{"Ana Letícia": {"A"}})
	repo := &memRepo{}
	svc := newTestService(repo, cat, nil)

	res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "  Ana Letícia ", Date: "2026-03-07"})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Role.ID)
	assert.Equal(t, "Ana Letícia", res.Assignment.Member)
}

func TestAllocateDateNormalisation(t *testing.T) {
	cat := fiveRoleCatalog(t, nil)

	plainRepo := &memRepo{}
	plainRepo.seed("Z", "2026-02-28", "A")
	stampRepo := &memRepo{}
	stampRepo.seed("Z", "2026-02-28", "A")

	plainSpy := &spyChooser{idx: 1}
	stampSpy := &spyChooser{idx: 1}
	plain, err := newTestService(plainRepo, cat, plainSpy.choose).Allocate(context.Background(), AllocateRequest{Member: "Z", Date: "2026-03-07"})
	require.NoError(t, err)
	stamped, err := newTestService(stampRepo, cat, stampSpy.choose).Allocate(context.Background(), AllocateRequest{Member: "Z", Date: "2026-03-07T00:00:00Z"})
	require.NoError(t, err)

	assert.Equal(t, plain.Role.ID, stamped.Role.ID)
	assert.Equal(t, plain.IsRepeated, stamped.IsRepeated)
	assert.Equal(t, plain.Assignment.Date, stamped.Assignment.Date)
	assert.Equal(t, plainSpy.calls, stampSpy.calls)
	assert.Equal(t, "2026-03-07", stamped.Assignment.Date.String())
}

func TestAllocateInvalidInput(t *testing.T) {
	svc := newTestService(&memRepo{}, fiveRoleCatalog(t, nil), nil)
	cases := []AllocateRequest{
		{Member: "", Date: "2026-03-07"},
		{Member: "   ", Date: "2026-03-07"},
		{Member: "X", Date: ""},
		{Member: "X", Date: "07/03/2026"},
		{Member: "X", Date: "2026-3-7"},
		{Member: "X", Date: "T2026-03-07"},
		{Member: "X", Date: "2026-02-30"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%q/%q", tc.Member, tc.Date), func(t *testing.T) {
			_, err := svc.Allocate(context.Background(), tc)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAllocateNoRepeatPreference(t *testing.T) {
	repo := &memRepo{}
	repo.seed("X", "2026-02-28", "A")
	spy := &spyChooser{idx: 0}
	svc := newTestService(repo, fiveRoleCatalog(t, nil), spy.choose)

	res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.NoError(t, err)
	assert.Equal(t, "B", res.Role.ID)
	assert.False(t, res.IsRepeated)
	assert.Equal(t, []int{4}, spy.calls)
}

func TestAllocatePreviousOccurrenceIsSameWeekdayOnly(t *testing.T) {
	repo := &memRepo{}
	// A week and a day back: not the reference occurrence.
	repo.seed("X", "2026-02-27", "A")
	spy := &spyChooser{idx: 0}
	svc := newTestService(repo, fiveRoleCatalog(t, nil), spy.choose)

	res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Role.ID)
	assert.False(t, res.IsRepeated)
	assert.Equal(t, []int{5}, spy.calls)
}

func TestAllocateMultiRoleIsAlsoAvoided(t *testing.T) {
	repo := &memRepo{}
	repo.seed("X", "2026-02-28", "E")
	cat := fiveRoleCatalog(t, map[string][]string{"X": {"A", "E"}})
	spy := &spyChooser{idx: 0}
	svc := newTestService(repo, cat, spy.choose)

	res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Role.ID)
	assert.False(t, res.IsRepeated)
}

func TestAllocateForcedRepeat(t *testing.T) {
	repo := &memRepo{}
	repo.seed("X", "2026-02-28", "C")
	repo.seed("p1", "2026-03-07", "A")
	repo.seed("p2", "2026-03-07", "B")
	cat := fiveRoleCatalog(t, map[string][]string{"X": {"A", "B", "C"}})
	rec := &countingRecorder{}
	spy := &spyChooser{idx: 0}
	svc := NewService(repo, cat, ServiceConfig{Chooser: spy.choose, Recorder: rec})

	res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.NoError(t, err)
	assert.Equal(t, "C", res.Role.ID)
	assert.True(t, res.IsRepeated)
	assert.Equal(t, []int{1}, spy.calls)
	assert.Equal(t, 1, rec.outcomes[OutcomeRepeated])
}

func TestAllocateNoEligibleRole(t *testing.T) {
	// A loaded catalog always has roles; the zero value has none.
	svc := newTestService(&memRepo{}, &catalog.Catalog{}, nil)

	_, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.ErrorIs(t, err, ErrNoEligibleRole)
}

func TestAllocateStoreFailureIsPersistence(t *testing.T) {
	boom := errors.New("connection refused")
	repo := &memRepo{failAll: boom}
	rec := &countingRecorder{}
	svc := NewService(repo, fiveRoleCatalog(t, nil), ServiceConfig{Recorder: rec})

	_, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.outcomes[OutcomePersistence])
}

// raceRepo reports no existing rows to the pre-checks so that the conflict
// surfaces only at insert time.
type raceRepo struct {
	memRepo
	insertErr error
}

func (r *raceRepo) HasAssignment(context.Context, string, calendar.Date) (bool, error) {
	return false, nil
}

func (r *raceRepo) InsertAssignment(context.Context, InsertParams) (Assignment, error) {
	return Assignment{}, r.insertErr
}

func TestAllocateMapsInsertConflicts(t *testing.T) {
	cat := fiveRoleCatalog(t, nil)

	svc := newTestService(&raceRepo{insertErr: ErrDuplicateAssignment}, cat, nil)
	_, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.ErrorIs(t, err, ErrAlreadyAssigned)

	svc = newTestService(&raceRepo{insertErr: ErrCapacityExceeded}, cat, nil)
	_, err = svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.ErrorIs(t, err, ErrNoCapacityAvailable)
}

func TestAllocatePassesRoleCapacityToStore(t *testing.T) {
	var got []InsertParams
	repo := &capturingRepo{onInsert: func(in InsertParams) { got = append(got, in) }}
	cat := fiveRoleCatalog(t, nil)

	_, err := newTestService(repo, cat, func(int) int { return 4 }).Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.NoError(t, err)
	_, err = newTestService(repo, cat, func(int) int { return 0 }).Allocate(context.Background(), AllocateRequest{Member: "Y", Date: "2026-03-07"})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "E", got[0].RoleID)
	assert.Equal(t, catalog.MultiCapacity, got[0].Capacity)
	assert.Equal(t, "A", got[1].RoleID)
	assert.Equal(t, catalog.SingleCapacity, got[1].Capacity)
}

type capturingRepo struct {
	memRepo
	onInsert func(InsertParams)
}

func (c *capturingRepo) InsertAssignment(ctx context.Context, in InsertParams) (Assignment, error) {
	c.onInsert(in)
	return c.memRepo.InsertAssignment(ctx, in)
}

func TestAllocateOutOfRangeChooserFallsBackToFirst(t *testing.T) {
	svc := newTestService(&memRepo{}, fiveRoleCatalog(t, nil), func(n int) int { return n + 7 })
	res, err := svc.Allocate(context.Background(), AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Role.ID)
}

func TestCapacityInvariantUnderConcurrency(t *testing.T) {
	repo := &memRepo{}
	cat := fiveRoleCatalog(t, nil)
	svc := NewService(repo, cat, ServiceConfig{})

	const members = 20
	var wg sync.WaitGroup
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Allocate(context.Background(), AllocateRequest{Member: fmt.Sprintf("m%02d", i), Date: "2026-03-07"})
		}(i)
	}
	wg.Wait()

	counts := map[string]int{}
	for _, a := range repo.rows {
		counts[a.RoleID]++
	}
	for id, n := range counts {
		role, ok := cat.Role(id)
		require.True(t, ok)
		assert.LessOrEqual(t, n, role.Capacity(), id)
	}
	assert.LessOrEqual(t, len(repo.rows), 7)
}

func TestAllocateNotifiesAndResets(t *testing.T) {
	repo := &memRepo{}
	notifier := &recordingNotifier{}
	svc := NewService(repo, fiveRoleCatalog(t, nil), ServiceConfig{Notifier: notifier})
	ctx := context.Background()

	_, err := svc.Allocate(ctx, AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.NoError(t, err)
	_, err = svc.Allocate(ctx, AllocateRequest{Member: "X", Date: "2026-03-07"})
	require.Error(t, err)
	require.Equal(t, []calendar.Date{calendar.MustParse("2026-03-07")}, notifier.changed)

	removed, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
	assert.Equal(t, 1, notifier.resets)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLastAssignment(t *testing.T) {
	repo := &memRepo{}
	repo.seed("X", "2026-02-28", "A")
	repo.seed("X", "2026-03-07", "B")
	repo.seed("X", "2026-03-01", "C")
	svc := newTestService(repo, fiveRoleCatalog(t, nil), nil)

	last, ok, err := svc.LastAssignment(context.Background(), "X")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", last.RoleID)

	_, ok, err = svc.LastAssignment(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = svc.LastAssignment(context.Background(), " ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRandomRole(t *testing.T) {
	cat := fiveRoleCatalog(t, nil)
	svc := newTestService(&memRepo{}, cat, func(n int) int { return n - 1 })
	assert.Equal(t, "E", svc.RandomRole().ID)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, roleIDs(cat.Roles()))
}
