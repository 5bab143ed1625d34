package node

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnrpc"
)

var LND_CONFIG = map[string]string{
	"bitcoin.active":  "true",
	"bitcoin.regtest": "true",
	"bitcoin.node":    "bitcoind",
	"noseedbackup":    "true",
}

// LndNode is one payment channel node backed by an lnd process on the
// shared bitcoind regtest chain. It implements LightningNode.
type LndNode struct {
	*DaemonProcess
	*LndRpcClient

	DataDir      string
	ConfigFile   string
	RpcAddress   string
	ListenPort   int
	TlsCertPath  string
	MacaroonPath string

	name    string
	pubkey  string
	bitcoin *BitcoinNode
}

func NewLndNode(networkDir string, bitcoin *BitcoinNode, name string) (*LndNode, error) {
	listen, err := GetFreePort()
	if err != nil {
		return nil, fmt.Errorf("GetFreePort() %w", err)
	}

	rpcListen, err := GetFreePort()
	if err != nil {
		return nil, fmt.Errorf("GetFreePort() %w", err)
	}

	nodeDir := filepath.Join(networkDir, fmt.Sprintf("lnd-%s", name))
	dataDir := filepath.Join(nodeDir, "data")
	err = os.MkdirAll(dataDir, os.ModeDir|os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("os.MkdirAll() %w", err)
	}

	regtestConfig := map[string]string{}
	for k, v := range LND_CONFIG {
		regtestConfig[k] = v
	}
	regtestConfig["alias"] = name
	regtestConfig["lnddir"] = nodeDir
	regtestConfig["datadir"] = dataDir
	regtestConfig["listen"] = fmt.Sprintf("localhost:%d", listen)
	regtestConfig["rpclisten"] = fmt.Sprintf("localhost:%d", rpcListen)
	regtestConfig["norest"] = "true"
	regtestConfig["bitcoind.dir"] = bitcoin.DataDir
	regtestConfig["bitcoind.rpchost"] = fmt.Sprintf("localhost:%d", bitcoin.RpcPort)
	regtestConfig["bitcoind.rpcuser"] = bitcoin.RpcUser
	regtestConfig["bitcoind.rpcpass"] = bitcoin.RpcPassword
	regtestConfig["bitcoind.zmqpubrawblock"] = bitcoin.ZmqPubRawBlock
	regtestConfig["bitcoind.zmqpubrawtx"] = bitcoin.ZmqPubRawTx

	configFile := filepath.Join(dataDir, "lnd.conf")
	err = WriteConfig(configFile, regtestConfig, nil, "")
	if err != nil {
		return nil, fmt.Errorf("WriteConfig() %w", err)
	}

	cmdLine := []string{
		"lnd",
		fmt.Sprintf("--configfile=%s", configFile),
	}

	return &LndNode{
		DaemonProcess: NewDaemonProcess(cmdLine, fmt.Sprintf("lnd-%s", name)),
		LndRpcClient:  nil,
		DataDir:       dataDir,
		ConfigFile:    configFile,
		RpcAddress:    fmt.Sprintf("localhost:%d", rpcListen),
		ListenPort:    listen,
		TlsCertPath:   filepath.Join(dataDir, "..", "tls.cert"),
		MacaroonPath:  filepath.Join(dataDir, "chain", "bitcoin", "regtest", "admin.macaroon"),
		name:          name,
		bitcoin:       bitcoin,
	}, nil
}

// RestoreLndNode rebuilds the handle for a persisted lnd data dir so
// the node can be restarted with the same identity and ports. The
// process is not started yet.
func RestoreLndNode(name, dataDir string, bitcoin *BitcoinNode) (*LndNode, error) {
	configFile := filepath.Join(dataDir, "lnd.conf")
	conf, err := ReadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("ReadConfig() %w", err)
	}

	_, listenPortStr, found := strings.Cut(conf["listen"], ":")
	if !found {
		return nil, fmt.Errorf("no listen port in %s", configFile)
	}
	listenPort, err := strconv.Atoi(listenPortStr)
	if err != nil {
		return nil, fmt.Errorf("Atoi() %w", err)
	}

	cmdLine := []string{
		"lnd",
		fmt.Sprintf("--configfile=%s", configFile),
	}

	return &LndNode{
		DaemonProcess: NewDaemonProcess(cmdLine, fmt.Sprintf("lnd-%s", name)),
		DataDir:       dataDir,
		ConfigFile:    configFile,
		RpcAddress:    conf["rpclisten"],
		ListenPort:    listenPort,
		TlsCertPath:   filepath.Join(dataDir, "..", "tls.cert"),
		MacaroonPath:  filepath.Join(dataDir, "chain", "bitcoin", "regtest", "admin.macaroon"),
		name:          name,
		bitcoin:       bitcoin,
	}, nil
}

// AttachLndNode connects to an already running lnd node using the
// reconnection metadata of a persisted fixture. No process handle is
// taken; Stop() on an attached node only closes the rpc connection.
func AttachLndNode(name, rpcAddress, tlsCertPath, macaroonPath string) (*LndNode, error) {
	n := &LndNode{
		name:         name,
		RpcAddress:   rpcAddress,
		TlsCertPath:  tlsCertPath,
		MacaroonPath: macaroonPath,
	}

	client, err := NewLndRpcClient(rpcAddress, tlsCertPath, macaroonPath)
	if err != nil {
		return nil, fmt.Errorf("NewLndRpcClient() %w", err)
	}
	n.LndRpcClient = client

	info, err := n.Rpc.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, fmt.Errorf("GetInfo() %w", err)
	}
	n.pubkey = info.IdentityPubkey
	return n, nil
}

func (n *LndNode) Name() string {
	return n.name
}

func (n *LndNode) Identity() string {
	return n.pubkey
}

func (n *LndNode) Address() string {
	return fmt.Sprintf("%s@localhost:%d", n.pubkey, n.ListenPort)
}

func (n *LndNode) Start() error {
	err := n.DaemonProcess.Run()
	if err != nil {
		return fmt.Errorf("DaemonProcess.Run() %w", err)
	}

	err = n.WaitForLog("LightningWallet opened", TIMEOUT)
	if err != nil {
		return fmt.Errorf("LndNode.Start() %w", err)
	}

	lndRpcClient, err := NewLndRpcClient(n.RpcAddress, n.TlsCertPath, n.MacaroonPath)
	if err != nil {
		return fmt.Errorf("NewLndRpcClient() %w", err)
	}
	n.LndRpcClient = lndRpcClient

	info, err := n.Rpc.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	if err != nil {
		return fmt.Errorf("GetInfo() %w", err)
	}
	n.pubkey = info.IdentityPubkey

	return nil
}

func (n *LndNode) Stop() error {
	// An attached node has no process handle; only drop the rpc
	// connection and leave the remote daemon alone.
	if n.DaemonProcess == nil {
		if n.LndRpcClient != nil {
			n.LndRpcClient.Close()
			n.LndRpcClient = nil
		}
		return nil
	}

	if n.LndRpcClient != nil {
		_, err := n.Rpc.StopDaemon(context.Background(), &lnrpc.StopRequest{})
		if err == nil && n.DaemonProcess != nil && n.Cmd != nil {
			n.Cmd.Wait()
		}
		n.LndRpcClient.Close()
		n.LndRpcClient = nil
	}
	if n.DaemonProcess != nil {
		n.Kill()
	}
	return nil
}

func (n *LndNode) IsSynced() (bool, error) {
	info, err := n.Rpc.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	if err != nil {
		return false, fmt.Errorf("GetInfo() %w", err)
	}

	if n.bitcoin == nil {
		// Attached node, no direct chain handle to compare against.
		return info.SyncedToChain, nil
	}

	chainHeight, err := n.bitcoin.BlockCount()
	if err != nil {
		return false, fmt.Errorf("BlockCount() %w", err)
	}

	return info.SyncedToChain && uint32(chainHeight) == info.BlockHeight, nil
}

func (n *LndNode) FundWallet(amount btcutil.Amount, mineBlock bool) (string, error) {
	if n.bitcoin == nil {
		return "", fmt.Errorf("can not fund attached node %s", n.name)
	}

	res, err := n.Rpc.NewAddress(context.Background(), &lnrpc.NewAddressRequest{
		Type: lnrpc.AddressType_WITNESS_PUBKEY_HASH,
	})
	if err != nil {
		return "", fmt.Errorf("NewAddress() %w", err)
	}

	_, err = n.bitcoin.SendToAddress(res.Address, amount)
	if err != nil {
		return "", fmt.Errorf("SendToAddress() %w", err)
	}

	if mineBlock {
		err = n.bitcoin.GenerateBlocks(1)
		if err != nil {
			return "", fmt.Errorf("GenerateBlocks() %w", err)
		}

		err = WaitForWithErr(func() (bool, error) {
			balance, err := n.Rpc.WalletBalance(context.Background(), &lnrpc.WalletBalanceRequest{})
			if err != nil {
				return false, fmt.Errorf("WalletBalance() %w", err)
			}
			return balance.ConfirmedBalance > 0, nil
		}, TIMEOUT)
		if err != nil {
			return "", err
		}
	}

	return res.Address, nil
}

func (n *LndNode) OpenChannel(peerAddr string, capacity, pushAmount btcutil.Amount) (string, error) {
	pubkey, host, port, err := SplitLnAddr(peerAddr)
	if err != nil {
		return "", fmt.Errorf("SplitLnAddr() %w", err)
	}

	_, err = n.Rpc.ConnectPeer(context.Background(), &lnrpc.ConnectPeerRequest{
		Addr: &lnrpc.LightningAddress{
			Pubkey: pubkey,
			Host:   fmt.Sprintf("%s:%d", host, port),
		},
	})
	if err != nil && !strings.Contains(err.Error(), "already connected") {
		return "", fmt.Errorf("ConnectPeer() %w", err)
	}

	pubkeyBytes, err := hex.DecodeString(pubkey)
	if err != nil {
		return "", fmt.Errorf("hex.DecodeString() %w", err)
	}

	cp, err := n.Rpc.OpenChannelSync(context.Background(), &lnrpc.OpenChannelRequest{
		NodePubkey:         pubkeyBytes,
		LocalFundingAmount: int64(capacity),
		PushSat:            int64(pushAmount),
	})
	if err != nil {
		return "", fmt.Errorf("OpenChannelSync() %w", err)
	}

	// Confirm the funding transaction so the channel can turn active.
	if n.bitcoin != nil {
		err = n.bitcoin.GenerateBlocks(6)
		if err != nil {
			return "", fmt.Errorf("GenerateBlocks() %w", err)
		}
	}

	hash, err := chainhash.NewHash(cp.GetFundingTxidBytes())
	if err != nil {
		return "", fmt.Errorf("chainhash.NewHash() %w", err)
	}
	return hash.String(), nil
}

func (n *LndNode) ListChannels() ([]*ChannelInfo, error) {
	res, err := n.Rpc.ListChannels(context.Background(), &lnrpc.ListChannelsRequest{})
	if err != nil {
		return nil, fmt.Errorf("ListChannels() %w", err)
	}

	channels := make([]*ChannelInfo, 0, len(res.Channels))
	for _, ch := range res.Channels {
		channels = append(channels, &ChannelInfo{
			PeerPubkey:    ch.RemotePubkey,
			ChanID:        ch.ChanId,
			Capacity:      btcutil.Amount(ch.Capacity),
			LocalBalance:  btcutil.Amount(ch.LocalBalance),
			RemoteBalance: btcutil.Amount(ch.RemoteBalance),
			NumUpdates:    ch.NumUpdates,
			Initiator:     ch.Initiator,
			Active:        ch.Active,
		})
	}
	return channels, nil
}

func (n *LndNode) GetNetworkInfo() (*NetworkStats, error) {
	res, err := n.Rpc.GetNetworkInfo(context.Background(), &lnrpc.NetworkInfoRequest{})
	if err != nil {
		return nil, fmt.Errorf("GetNetworkInfo() %w", err)
	}

	return &NetworkStats{
		GraphDiameter:     res.GraphDiameter,
		AvgOutDegree:      res.AvgOutDegree,
		MaxOutDegree:      res.MaxOutDegree,
		NumNodes:          res.NumNodes,
		NumChannels:       res.NumChannels,
		TotalCapacity:     btcutil.Amount(res.TotalNetworkCapacity),
		AvgChannelSize:    res.AvgChannelSize,
		MinChannelSize:    btcutil.Amount(res.MinChannelSize),
		MaxChannelSize:    btcutil.Amount(res.MaxChannelSize),
		MedianChannelSize: btcutil.Amount(res.MedianChannelSizeSat),
		NumZombieChans:    res.NumZombieChans,
	}, nil
}
