package examplecatalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExampleGoodThreshold(t *testing.T) {
	require.True(t, Example{Score: 32}.Good())
	require.True(t, Example{Score: 40}.Good())
	require.False(t, Example{Score: 31}.Good())
}

func TestCatalogAddAndAll(t *testing.T) {
	c := New()
	c.Add("a", Example{Query: "q1", Timestamp: time.Unix(1, 0)})
	c.Add("b", Example{Query: "q2", Timestamp: time.Unix(2, 0)})

	all := c.All()
	require.Len(t, all, 2)
	require.Equal(t, "q1", all[0].Query)
}

func TestCatalogEvictsOldestPastCapacity(t *testing.T) {
	c := New()
	for i := 0; i < MaxEntries+5; i++ {
		c.Add(fmt.Sprintf("id-%d", i), Example{
			Query:     fmt.Sprintf("q%d", i),
			Timestamp: time.Unix(int64(i), 0),
		})
	}
	require.Equal(t, MaxEntries, c.Len())

	all := c.All()
	require.Equal(t, "q5", all[0].Query)
	require.Equal(t, fmt.Sprintf("q%d", MaxEntries+4), all[len(all)-1].Query)
}

func TestCatalogGoodAndBadSplitAndCap(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.Add(fmt.Sprintf("good-%d", i), Example{
			Query:     fmt.Sprintf("good%d", i),
			Score:     40,
			Timestamp: time.Unix(int64(i), 0),
		})
	}
	for i := 0; i < 5; i++ {
		c.Add(fmt.Sprintf("bad-%d", i), Example{
			Query:     fmt.Sprintf("bad%d", i),
			Score:     10,
			Timestamp: time.Unix(int64(100+i), 0),
		})
	}

	good := c.Good(3)
	require.Len(t, good, 3)
	for _, e := range good {
		require.True(t, e.Good())
	}
	require.Equal(t, "good4", good[len(good)-1].Query)

	bad := c.Bad(3)
	require.Len(t, bad, 3)
	for _, e := range bad {
		require.False(t, e.Good())
	}
}

func TestDefaultCatalogIsSingleton(t *testing.T) {
	require.Same(t, Default(), Default())
}
