// Package rpc is the state container's external boundary (§6): the
// Accumulate STF never owns persistence, it calls out to a storage backend
// through get_account/commit. This client speaks to that backend over the
// same bare JSON-RPC-over-HTTP shape the teacher used for
// eth_getCode/eth_getBalance.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jamvm/accumulate/jamstate"
)

type Client struct {
	Endpoint string
}

func NewClient(endpoint string) *Client {
	return &Client{Endpoint: endpoint}
}

// GetAccount implements §6's `get_account(service_id) -> Option<Account>`:
// a nil *jamstate.Account with a nil error means "absent", mirroring how
// the teacher's GetCode/GetBalance treat an RPC null result.
func (c *Client) GetAccount(serviceID uint32) (*jamstate.Account, error) {
	resp, err := rpcPost(c.Endpoint, "jam_getAccount", []interface{}{serviceID})
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	var account *jamstate.Account
	if err := json.Unmarshal(resp.Result, &account); err != nil {
		return nil, err
	}
	return account, nil
}

// Mutation is one account-level change to commit, keyed by service id.
// nil Account means the service was evicted (EJECT).
type Mutation struct {
	ServiceID uint32
	Account   *jamstate.Account
}

// Commit implements §6's `commit(slot, mutations)`: it persists the
// Accumulate STF's output to whatever backend the RPC endpoint fronts.
// The backend and its consistency model are explicitly out of scope
// here (§1); this is only the call shape.
func (c *Client) Commit(slot uint32, mutations []Mutation) error {
	params := []interface{}{slot, mutations}
	resp, err := rpcPost(c.Endpoint, "jam_commit", params)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	return nil
}

type RPCRequest struct {
	ID      int           `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type RPCResponse struct {
	ID      int             `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Err     *ErrResponse    `json:"error,omitempty"`
}

type ErrResponse struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *ErrResponse) Error() string {
	return fmt.Sprintf(`{"code": "%d", "message": "%s"}`, e.Code, e.Message)
}

func rpcPost(rpcEndpoint, method string, params []interface{}) (*RPCResponse, error) {
	payload := RPCRequest{
		ID:      1,
		JSONRpc: "2.0",
		Method:  method,
		Params:  params,
	}

	data, err := json.Marshal(&payload)
	if err != nil {
		return nil, err
	}
	body := bytes.NewBuffer(data)

	resp, err := http.Post(rpcEndpoint, "application/json", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result RPCResponse
	err = json.Unmarshal(b, &result)

	return &result, err
}
