// File: cmd/evsock/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Command evsock runs the sample callback server and a line-oriented client.
package main

func main() {
	Execute()
}
