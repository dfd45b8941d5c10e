package query

import (
	"errors"
	"iter"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgraph/internal/store"
	"kgraph/internal/terms"
)

type fixture struct {
	terms *terms.Table
	facts *store.Store
}

func newFixture(triples ...[3]string) *fixture {
	f := &fixture{terms: terms.NewTable(), facts: store.New()}
	for _, tr := range triples {
		f.add(tr[0], tr[1], tr[2])
	}
	return f
}

func (f *fixture) add(s, p, o string) {
	f.facts.Add(store.Triple{
		S: f.terms.Encode(s),
		P: f.terms.Encode(p),
		O: f.terms.Encode(o),
	}, store.AssertedProvenance)
}

func (f *fixture) query() *Builder {
	return New(StoreSource{Terms: f.terms, Facts: f.facts})
}

func people() *fixture {
	return newFixture(
		[3]string{"Alice", "knows", "Bob"},
		[3]string{"Alice", "likes", "Pizza"},
		[3]string{"Bob", "knows", "Charlie"},
		[3]string{"Alicia", "knows", "Alice"},
		[3]string{"Charlie", "worksAt", "Acme"},
	)
}

func TestGetDecodedTriplesWithFilters(t *testing.T) {
	f := people()

	tests := []struct {
		name string
		q    *Builder
		want []DecodedTriple
	}{
		{
			name: "subject",
			q:    f.query().WithSubject("Alice"),
			want: []DecodedTriple{{"Alice", "knows", "Bob"}, {"Alice", "likes", "Pizza"}},
		},
		{
			name: "predicate",
			q:    f.query().WithPredicate("knows"),
			want: []DecodedTriple{{"Alice", "knows", "Bob"}, {"Bob", "knows", "Charlie"}, {"Alicia", "knows", "Alice"}},
		},
		{
			name: "subject like",
			q:    f.query().WithSubjectLike("lic"),
			want: []DecodedTriple{{"Alice", "knows", "Bob"}, {"Alice", "likes", "Pizza"}, {"Alicia", "knows", "Alice"}},
		},
		{
			name: "object starting",
			q:    f.query().WithObjectStarting("Ch"),
			want: []DecodedTriple{{"Bob", "knows", "Charlie"}},
		},
		{
			name: "predicate ending",
			q:    f.query().WithPredicateEnding("At"),
			want: []DecodedTriple{{"Charlie", "worksAt", "Acme"}},
		},
		{
			name: "combined",
			q:    f.query().WithSubject("Alice").WithPredicate("knows"),
			want: []DecodedTriple{{"Alice", "knows", "Bob"}},
		},
		{
			name: "unknown term",
			q:    f.query().WithSubject("Zed"),
			want: nil,
		},
		{
			name: "conflicting exact filters",
			q:    f.query().WithSubject("Alice").WithSubject("Bob"),
			want: nil,
		},
		{
			name: "limit and offset",
			q:    f.query().Offset(1).Limit(2),
			want: []DecodedTriple{{"Alice", "likes", "Pizza"}, {"Bob", "knows", "Charlie"}},
		},
		{
			name: "limit zero",
			q:    f.query().Limit(0),
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.q.GetDecodedTriples()
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GetDecodedTriples mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProjections(t *testing.T) {
	f := people()

	subjects, err := f.query().WithPredicate("knows").GetSubjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Alicia"}, subjects)

	all, err := f.query().GetSubjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Alicia", "Charlie"}, all, "subjects are distinct")

	preds, err := f.query().WithSubject("Alice").GetPredicates()
	require.NoError(t, err)
	assert.Equal(t, []string{"knows", "likes"}, preds)

	objs, err := f.query().WithPredicate("knows").GetObjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Charlie", "Alice"}, objs)
}

func TestCountReexecutesAgainstCurrentState(t *testing.T) {
	f := people()
	q := f.query().WithPredicate("knows")

	n, err := q.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f.add("Dora", "knows", "Eve")
	n, err = q.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestBuilderIsImmutable(t *testing.T) {
	f := people()
	base := f.query().WithPredicate("knows")
	narrowed := base.WithSubject("Bob")

	n, err := base.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = narrowed.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNegativeLimitIsInvalid(t *testing.T) {
	f := people()
	q := f.query().Limit(-1)
	assert.ErrorIs(t, q.Err(), ErrInvalidArgument)
	assert.NoError(t, f.query().Limit(0).Err())

	_, err := q.GetDecodedTriples()
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	_, err = q.Count()
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.query().Offset(-3).GetSubjects()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDistinctOverDuplicateSource(t *testing.T) {
	f := people()
	dup := dupSource{inner: StoreSource{Terms: f.terms, Facts: f.facts}}

	n, err := New(dup).WithSubject("Alice").Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = New(dup).WithSubject("Alice").Distinct().Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// dupSource yields every triple twice, like a bag-valued window.
type dupSource struct{ inner StoreSource }

func (d dupSource) Read(fn func(View) error) error {
	return d.inner.Read(func(v View) error { return fn(dupView{v}) })
}

type dupView struct{ View }

func (d dupView) Scan(l store.Lookup) iter.Seq[store.Triple] {
	return func(yield func(store.Triple) bool) {
		for t := range d.View.Scan(l) {
			if !yield(t) || !yield(t) {
				return
			}
		}
	}
}
