// Package gwatchdog detects stalled subsystems.
//
// A subsystem asks the [Watchdog] for a monitor and must answer every [Signal]
// by closing its Alive channel from its main loop.
// A subsystem that stops answering causes the watchdog's context to be canceled
// with a [FailureToRespondError], taking the whole process down
// rather than letting a wedged decision loop go unnoticed.
package gwatchdog
