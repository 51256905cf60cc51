package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"worker-pipeline/config"
)

func TestRoot_HelpWithoutEnvironment(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"migrate", "--help"}, {"enqueue", "--help"}} {
		var out bytes.Buffer
		root := Root(&config.Config{Queue: &config.RabbitMQ{}})
		root.SetOut(&out)
		root.SetArgs(args)

		require.NoError(t, root.Execute(), args)
		assert.Contains(t, out.String(), "Usage:", args)
	}
}

func TestRoot_CommandsValidateConfig(t *testing.T) {
	root := Root(&config.Config{Queue: &config.RabbitMQ{}})
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"migrate"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
