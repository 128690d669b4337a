package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["run"])
	require.True(t, names["reserve"])
	require.True(t, names["wallet"])

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NotNil(t, run.Flags().Lookup("date"))
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]string{"balance": "1"}))
	require.Equal(t, "{\n  \"balance\": \"1\"\n}\n", buf.String())
}
