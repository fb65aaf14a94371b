// Package cli provides the interactive contacts client.
//
// It wires configuration, the local SQLite record store, the REST client, the
// event channel and the sync engine, then runs a REPL on stdin. Every edit is
// applied locally first, so the REPL works the same whether or not the server
// is reachable; the prompt shows the connection state and the number of
// visible contacts.
//
// Commands:
//   - add [first last phone]  create a contact
//   - edit [id]               change fields, empty input keeps a value
//   - delete [id]             delete a contact
//   - (l)ist                  list contacts
//   - pending                 list records not yet confirmed by the server
//   - status                  connection and server health
//   - sync                    push and pull now
//   - exit | quit
//
// Logs go to a rotating file, not the terminal.
package cli
