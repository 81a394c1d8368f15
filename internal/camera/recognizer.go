package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
)

// RecognizerSource runs an external landmark helper and reads its stdout as
// landmark JSON lines. Its stderr is forwarded to the log. The helper runs
// in Dir, or in the current directory when Dir is empty.
type RecognizerSource struct {
	Command string
	Args    []string
	Dir     string
}

// Run starts the helper and publishes its frames until it exits or ctx is done
func (s *RecognizerSource) Run(ctx context.Context, publish PublishFunc) error {
	if s.Command == "" {
		return errors.New("camera: no recognizer command configured")
	}

	log.Printf("Camera: Starting recognizer: %s %v", s.Command, s.Args)

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Dir = s.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("camera: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("camera: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("camera: start recognizer: %w", err)
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			log.Printf("Camera: [recognizer] %s", sc.Text())
		}
	}()

	readErr := (&ReaderSource{R: stdout}).Run(ctx, publish)
	if readErr != nil {
		// Nobody drains stdout any more
		cmd.Process.Kill()
	}

	// Wait closes the pipes, so stderr has to be drained first
	<-stderrDone
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return fmt.Errorf("camera: recognizer exited: %w", waitErr)
	}
	log.Printf("Camera: Recognizer exited")
	return nil
}
