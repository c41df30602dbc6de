// Package secretstore abstracts the platform credential manager behind a
// three-method key/value interface.
//
// Backends:
//
//   - Keyring stores values in the OS keychain (macOS Keychain, Windows
//     Credential Manager, Secret Service on Linux) via go-keyring. Values
//     longer than DefaultChunkSize are split across numbered entries, since
//     the platform stores cap a single entry at a few kilobytes.
//   - File keeps one 0600 file per key inside a private directory, replaced
//     atomically on every write.
//   - Redis shares values between machines through a redis server.
//   - Memory is process-local and intended for tests and ephemeral use.
//
// None of the backends encrypt on their own; the session store seals its
// payload before handing it over. LoadOrCreateKey bootstraps the master key
// that sealing uses, keeping it in whichever backend is supplied.
package secretstore
