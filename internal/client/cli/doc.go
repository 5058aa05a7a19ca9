// Package cli is the interactive evidence browser.
//
// The user selects a vault or case tree, walks its folders, inspects files,
// links vault files to cases and asks for download URLs. A background
// watcher probes the server's health endpoint and shows the result in the
// prompt. The REPL is started with App.Run and blocks until the user exits
// or input ends.
package cli
