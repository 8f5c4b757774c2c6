package feed

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "feedbot/pkg/logx"
)

const multiFeed = `[
	// first item is a single
	{"title": "DO_NOT_TWEET", "text": "skip me", "chain": false},
	{"title": "CHAIN_1", "text": "one", "chain": true},
	{"title": "CHAIN_2", "text": "two", "chain": true},
	{"title": "CHAIN_3", "text": "three", "chain": false, "rerun": false},
	{"title": "TAIL", "text": "tail",},
]`

func newAccessor(t *testing.T, path, content string) *Accessor {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	return New(fs, path, logx.Nop())
}

func TestRunSingleItem(t *testing.T) {
	a := newAccessor(t, "/feed.json", multiFeed)

	run, err := a.Run(0)
	require.NoError(t, err)
	require.Len(t, run, 1)
	assert.Equal(t, "DO_NOT_TWEET", run[0].Title)
	assert.Equal(t, 5, a.TotalItems())
}

func TestRunResolvesChain(t *testing.T) {
	a := newAccessor(t, "/feed.json", multiFeed)

	run, err := a.Run(1)
	require.NoError(t, err)
	require.Len(t, run, 3)
	for i, it := range run {
		assert.Equal(t, 1+i, it.Index, "contiguous index range")
		if i < len(run)-1 {
			assert.True(t, it.Chain, "every item but the last chains")
		}
	}
	assert.Equal(t, "CHAIN_3", run[2].Title)
	assert.False(t, run[2].Rerun)
}

func TestRunMidChainStartsAtGivenIndex(t *testing.T) {
	a := newAccessor(t, "/feed.json", multiFeed)

	run, err := a.Run(2)
	require.NoError(t, err)
	require.Len(t, run, 2)
	assert.Equal(t, "CHAIN_2", run[0].Title)
	assert.Equal(t, "CHAIN_3", run[1].Title)
}

func TestRunChainAtEndOfFeed(t *testing.T) {
	a := newAccessor(t, "/feed.json", `[{"title":"A","text":"a"},{"title":"B","text":"b","chain":true}]`)

	run, err := a.Run(1)
	require.NoError(t, err)
	require.Len(t, run, 1)
	assert.Equal(t, "B", run[0].Title)
}

func TestMissingBooleansDefault(t *testing.T) {
	a := newAccessor(t, "/feed.json", `[{"title":"BOOL_ABSENSE_1","text":"x"},{"title":"BOOL_ABSENSE_2","text":"y"}]`)

	run, err := a.Run(0)
	require.NoError(t, err)
	require.Len(t, run, 1)
	assert.False(t, run[0].Chain)
	assert.True(t, run[0].Rerun)
}

func TestYAMLFeed(t *testing.T) {
	a := newAccessor(t, "/feed.yaml", `
- title: A
  text: a
  chain: true
- title: B
  text: b
  rerun: false
`)

	run, err := a.Run(0)
	require.NoError(t, err)
	require.Len(t, run, 2)
	assert.True(t, run[0].Rerun)
	assert.False(t, run[1].Rerun)
}

func TestRunOutOfRange(t *testing.T) {
	a := newAccessor(t, "/feed.json", multiFeed)

	_, err := a.Run(5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoadFeed))

	var lfe *LoadFeedError
	require.True(t, errors.As(err, &lfe))
	assert.Equal(t, 5, lfe.Index)
	assert.Equal(t, 5, lfe.Total)

	_, err = a.Run(-1)
	assert.ErrorIs(t, err, ErrLoadFeed)
}

func TestRunMissingFile(t *testing.T) {
	a := New(afero.NewMemMapFs(), "/nope.json", logx.Nop())

	_, err := a.Run(0)
	assert.ErrorIs(t, err, ErrLoadFeed)
	assert.Equal(t, 0, a.TotalItems())
}

func TestRunMalformedAndUntitled(t *testing.T) {
	a := newAccessor(t, "/feed.json", `[{"title": "A"`)
	_, err := a.Run(0)
	assert.ErrorIs(t, err, ErrLoadFeed)

	b := newAccessor(t, "/feed.json", `[{"text": "no title"}]`)
	_, err = b.Run(0)
	assert.ErrorIs(t, err, ErrLoadFeed)
}

func TestReloadsOnEveryCall(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/feed.json", []byte(`[{"title":"A","text":"a"}]`), 0o644))
	a := New(fs, "/feed.json", logx.Nop())

	_, err := a.Run(0)
	require.NoError(t, err)
	assert.Equal(t, 1, a.TotalItems())

	require.NoError(t, afero.WriteFile(fs, "/feed.json", []byte(`[{"title":"A","text":"a"},{"title":"B","text":"b"}]`), 0o644))
	run, err := a.Run(1)
	require.NoError(t, err)
	assert.Equal(t, "B", run[0].Title)
	assert.Equal(t, 2, a.TotalItems())
}
