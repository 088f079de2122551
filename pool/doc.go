// Package pool
// Author: momentics <momentics@gmail.com>
//
// Receive-buffer pooling for evsock. Every receive loop reads into a
// fixed-size buffer; pooling keeps short-lived connections from allocating
// a fresh one each time.
package pool
