// serialcomm/utils.go
package serialcomm

import "fmt"

// Hex formats a frame the way it is logged: upper case, space separated.
func Hex(frame []byte) string {
	return fmt.Sprintf("% X", frame)
}
