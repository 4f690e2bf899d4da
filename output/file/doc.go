// Package file provides a terminal node that writes payloads to a file or
// io.Writer.
//
// Formats:
//   - jsonl: json.Marshal of each payload followed by a newline. []byte
//     payloads that already hold valid JSON are written unchanged.
//   - json: indented JSON, one document per payload.
//   - raw: []byte and string payloads written verbatim; other types fail
//     with an unexpected-payload error.
//
// Dispose drains the node's mailbox before flushing and closing the file, so
// every payload accepted by ReceiveData reaches disk.
package file
