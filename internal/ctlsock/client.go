package ctlsock

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"pkt.systems/boxmux/schema"
)

// Send delivers one control request over the socket and waits for its reply.
func Send(ctx context.Context, path string, req schema.ControlRequest) (schema.ControlResponse, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return schema.ControlResponse{}, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return schema.ControlResponse{}, err
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return schema.ControlResponse{}, fmt.Errorf("write request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestBytes)
	if !scanner.Scan() {
		if scanErr := scanner.Err(); scanErr != nil {
			return schema.ControlResponse{}, fmt.Errorf("read response: %w", scanErr)
		}
		return schema.ControlResponse{}, fmt.Errorf("connection closed before response")
	}
	var resp schema.ControlResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return schema.ControlResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
