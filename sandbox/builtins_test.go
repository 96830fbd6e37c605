package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutePrintWritesToStdout(t *testing.T) {
	ex := NewExecutor(DefaultAllowList(), nil, nil, DefaultTimeout)
	result := ex.Execute(context.Background(), `(do (print "a" "b") (println "c"))`)
	require.Empty(t, result.Error)
	require.Equal(t, "a bc\n", result.Stdout)
}

func TestExecutePrintlnSerializesCollectionsAsJSON(t *testing.T) {
	ex := NewExecutor(DefaultAllowList(), nil, nil, DefaultTimeout)
	result := ex.Execute(context.Background(), `(println (vector 1 2 3))`)
	require.Empty(t, result.Error)
	require.Equal(t, "[1,2,3]\n", result.Stdout)
}

func TestDisplayStringScalarsAndNil(t *testing.T) {
	require.Equal(t, "nil", displayString(Nil))
	require.Equal(t, "hello", displayString(Str("hello")))
	require.Equal(t, "3", displayString(Int(3)))
	require.Equal(t, "true", displayString(Bool(true)))
}
