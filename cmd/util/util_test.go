package util

import (
	"github.com/ValentinKolb/dMap/lib/common"
	"github.com/ValentinKolb/dMap/lib/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "", WrapString("   "))
}

func TestParseInt64List(t *testing.T) {
	got, err := ParseInt64List(" 4, 2,,6 ")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2, 6}, got)

	got, err = ParseInt64List("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseInt64List("1,x")
	assert.Error(t, err)
}

func TestParseRange(t *testing.T) {
	from, to, err := ParseRange("3:7")
	require.NoError(t, err)
	assert.Equal(t, int64(3), from)
	assert.Equal(t, int64(7), to)

	for _, bad := range []string{"3", "3:x", "x:3", "7:3", "1:2:3"} {
		_, _, err := ParseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitExtractor(t *testing.T) {
	conf := common.DefaultConfig()
	conf.SplitCollections = true

	idx, err := index.New[string, string](SplitExtractor(&conf), IndexOptions(&conf)...)
	require.NoError(t, err)

	idx.Insert(index.NewEntry("a", "red| blue"))
	idx.Insert(index.NewEntry("b", "blue"))

	assert.ElementsMatch(t, []string{"a"}, idx.Contents().Get("red"))
	assert.ElementsMatch(t, []string{"a", "b"}, idx.Contents().Get("blue"))
	assert.Empty(t, idx.Contents().Get("red| blue"))
}

func TestSplitExtractorDisabled(t *testing.T) {
	conf := common.DefaultConfig()

	idx, err := index.New[string, string](SplitExtractor(&conf), IndexOptions(&conf)...)
	require.NoError(t, err)

	idx.Insert(index.NewEntry("a", "red|blue"))
	assert.ElementsMatch(t, []string{"a"}, idx.Contents().Get("red|blue"))
	assert.Empty(t, idx.Contents().Get("red"))
}
