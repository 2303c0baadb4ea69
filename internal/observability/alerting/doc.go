// Package alerting fans supervisor failure events out to operators through a
// JSON webhook and the process log.
package alerting
