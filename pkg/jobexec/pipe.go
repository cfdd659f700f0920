package jobexec

import "io"

// pipePair adapts a child process's separate stdout/stdin pipes into the
// single io.ReadWriter ipc.Codec expects.
type pipePair struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (p *pipePair) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePair) Write(b []byte) (int, error) { return p.w.Write(b) }
