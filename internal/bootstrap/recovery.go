package bootstrap

import "os"

// RecoveryFilePath is where the platform appends shell commands to run
// on a non-graceful exit; a graceful exit unlinks it instead.
const RecoveryFilePath = "/tmp/.recovery_actions"

// AppendRecoveryAction appends action, newline-terminated, to the
// recovery file, creating it if it doesn't already exist. Called from
// the fatal-error path before the process actually exits, so whatever
// the operator's recovery tooling does next has something to read.
func AppendRecoveryAction(action string) error {
	f, err := os.OpenFile(RecoveryFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(action + "\n")
	return err
}

// ClearRecoveryFile unlinks the recovery file on a graceful exit. A
// file that doesn't exist is not an error - nothing was ever appended.
func ClearRecoveryFile() error {
	err := os.Remove(RecoveryFilePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
