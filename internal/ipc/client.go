package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Segue.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check starts an update session.
func (c *Client) Check(trigger string) (*CheckResponse, error) {
	var resp CheckResponse
	if err := c.client.Call("Segue.Check", CheckRequest{Trigger: trigger}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Proceed accepts the offered update.
func (c *Client) Proceed() (*ProceedResponse, error) {
	var resp ProceedResponse
	if err := c.client.Call("Segue.Proceed", ProceedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dismiss declines the offered update.
func (c *Client) Dismiss() (*DismissResponse, error) {
	var resp DismissResponse
	if err := c.client.Call("Segue.Dismiss", DismissRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel aborts the active session.
func (c *Client) Cancel() (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.client.Call("Segue.Cancel", CancelRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History retrieves recent update sessions.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.client.Call("Segue.History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Skip excludes a version from future update offers.
func (c *Client) Skip(version string) (*SkipResponse, error) {
	var resp SkipResponse
	if err := c.client.Call("Segue.Skip", SkipRequest{Version: version}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Unskip removes a version from the skip list.
func (c *Client) Unskip(version string) (*UnskipResponse, error) {
	var resp UnskipResponse
	if err := c.client.Call("Segue.Unskip", UnskipRequest{Version: version}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Skipped lists the versions excluded from update offers.
func (c *Client) Skipped() (*SkippedResponse, error) {
	var resp SkippedResponse
	if err := c.client.Call("Segue.Skipped", SkippedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Segue.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Segue.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Segue.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
