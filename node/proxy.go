package node

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"github.com/ybbus/jsonrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"

	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
)

const (
	// defaultGrpcBackoffTime is the linear backoff time between failing
	// grpc calls to the lnd node.
	defaultGrpcBackoffTime   = 1 * time.Second
	defaultGrpcBackoffJitter = 0.1

	// defaultMaxGrpcRetries is the amount of retries we take if the
	// grpc connection to the lnd node drops for some reason or if the
	// resource is exhausted.
	defaultMaxGrpcRetries = 5
)

var (
	// defaultGrpcRetryCodes are the grpc status codes that are returned
	// with an error, on which we retry our call to the lnd node.
	defaultGrpcRetryCodes []codes.Code = []codes.Code{
		codes.Unavailable,
		codes.ResourceExhausted,
	}

	// defaultGrpcRetryCodesWithMsg are grpc status codes that must have
	// a matching message for us to retry. This is due to lnd using a
	// confusing rpc error code on startup.
	// See: https://github.com/lightningnetwork/lnd/issues/6765
	defaultGrpcRetryCodesWithMsg []grpc_retry.CodeWithMsg = []grpc_retry.CodeWithMsg{
		{
			Code: codes.Unknown,
			Msg:  "the RPC server is in the process of starting up, but not yet ready to accept calls",
		},
		{
			Code: codes.Unknown,
			Msg:  "server is in the process of starting up, but not yet ready to accept calls",
		},
		{
			Code: codes.Unknown,
			Msg:  "chain notifier RPC is still in the process of starting",
		},
	}
)

// RpcProxy is a JSON-RPC client to a settlement layer daemon,
// configured from the daemon's own config file.
type RpcProxy struct {
	rpcHost    string
	rpcPort    int
	configFile string
	serviceURL *url.URL
	authHeader []byte

	Rpc jsonrpc.RPCClient
}

func NewRpcProxy(configFile string) (*RpcProxy, error) {
	conf, err := ReadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("ReadConfig() %w", err)
	}

	var rpcPort int
	if port, ok := conf["rpcport"]; ok {
		portInt, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("could not convert string to int %w", err)
		}
		rpcPort = portInt
	} else {
		return nil, fmt.Errorf("rpcport not found in config %s", configFile)
	}

	rpcHost := "localhost"
	if host, ok := conf["rpchost"]; ok {
		rpcHost = host
	}

	serviceRawURL := fmt.Sprintf("%s://%s:%d", "http", rpcHost, rpcPort)
	serviceURL, err := url.Parse(serviceRawURL)
	if err != nil {
		return nil, fmt.Errorf("url.Parse() %w", err)
	}

	pass, ok := conf["rpcpassword"]
	if !ok {
		return nil, fmt.Errorf("rpcpassword not found in config %s", configFile)
	}
	user, ok := conf["rpcuser"]
	if !ok {
		return nil, fmt.Errorf("rpcuser not found in config %s", configFile)
	}

	auth64 := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", user, pass)))
	authHeader := append([]byte("Basic "), []byte(auth64)...)

	rpcClient := jsonrpc.NewClientWithOpts(serviceURL.String(), &jsonrpc.RPCClientOpts{
		CustomHeaders: map[string]string{
			"Authorization": string(authHeader),
		},
	})

	return &RpcProxy{
		rpcHost:    rpcHost,
		rpcPort:    rpcPort,
		configFile: configFile,
		serviceURL: serviceURL,
		authHeader: authHeader,
		Rpc:        rpcClient,
	}, nil
}

func (p *RpcProxy) Call(method string, parameters ...any) (*jsonrpc.RPCResponse, error) {
	return p.Rpc.Call(method, parameters...)
}

// LndRpcClient is a grpc client to a single lnd node, with retry
// interceptors that paper over lnd's startup phase.
type LndRpcClient struct {
	Rpc  lnrpc.LightningClient
	conn *grpc.ClientConn
}

func NewLndRpcClient(host, certPath, macaroonPath string, options ...grpc.DialOption) (*LndRpcClient, error) {
	creds, err := credentials.NewClientTLSFromFile(certPath, "")
	if err != nil {
		return nil, fmt.Errorf("NewClientTLSFromFile() %w", err)
	}

	macBytes, err := os.ReadFile(macaroonPath)
	if err != nil {
		return nil, fmt.Errorf("ReadFile() %w", err)
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("UnmarshalBinary() %w", err)
	}

	cred, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, fmt.Errorf("NewMacaroonCredential() %w", err)
	}

	maxMsgRecvSize := grpc.MaxCallRecvMsgSize(1 * 1024 * 1024 * 500)
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(cred),
		grpc.WithDefaultCallOptions(maxMsgRecvSize),
		grpc.WithBlock(),
	}
	opts = append(opts, options...)

	retryOptions := []grpc_retry.CallOption{
		grpc_retry.WithBackoff(
			grpc_retry.BackoffExponentialWithJitter(
				defaultGrpcBackoffTime,
				defaultGrpcBackoffJitter,
			),
		),
		grpc_retry.WithCodes(defaultGrpcRetryCodes...),
		grpc_retry.WithCodesAndMatchingMessage(defaultGrpcRetryCodesWithMsg...),
		grpc_retry.WithMax(defaultMaxGrpcRetries),
	}

	interceptorOpts := []grpc.DialOption{
		grpc.WithStreamInterceptor(grpc_retry.StreamClientInterceptor(
			retryOptions...,
		)),
		grpc.WithUnaryInterceptor(grpc_retry.UnaryClientInterceptor(
			retryOptions...,
		)),
	}
	opts = append(opts, interceptorOpts...)

	ctx, cancel := context.WithTimeout(context.Background(), TIMEOUT)
	defer cancel()

	conn, err := grpc.DialContext(ctx, host, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc.DialContext() %w", err)
	}

	lnRpc := lnrpc.NewLightningClient(conn)
	return &LndRpcClient{
		Rpc:  lnRpc,
		conn: conn,
	}, nil
}

func (c *LndRpcClient) Close() error {
	return c.conn.Close()
}
