package bootstrap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryFileLifecycle(t *testing.T) {
	_ = os.Remove(RecoveryFilePath)
	t.Cleanup(func() { _ = os.Remove(RecoveryFilePath) })

	require.NoError(t, AppendRecoveryAction("umount /dev/foo"))
	require.NoError(t, AppendRecoveryAction("rm -rf /tmp/foo.sock"))

	contents, err := os.ReadFile(RecoveryFilePath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "umount /dev/foo\n")
	assert.Contains(t, string(contents), "rm -rf /tmp/foo.sock\n")

	require.NoError(t, ClearRecoveryFile())
	_, err = os.Stat(RecoveryFilePath)
	assert.True(t, os.IsNotExist(err))
}

func TestClearRecoveryFileMissingIsNotError(t *testing.T) {
	_ = os.Remove(RecoveryFilePath)
	assert.NoError(t, ClearRecoveryFile())
}
