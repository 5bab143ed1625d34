package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
)

var BITCOIND_CONFIG = map[string]string{
	"regtest":     "1",
	"rpcuser":     "rpcuser",
	"rpcpassword": "rpcpass",
	"fallbackfee": "0.00001",
	"txindex":     "1",
	"server":      "1",
	"listen":      "0",
}

// BitcoinNode is the shared settlement layer daemon all payment nodes
// of a network connect to. All settings live in the config file inside
// the data dir, so a persisted data dir restarts on the same ports.
type BitcoinNode struct {
	*DaemonProcess
	*RpcProxy

	DataDir        string
	ConfigFile     string
	RpcPort        int
	RpcUser        string
	RpcPassword    string
	WalletName     string
	ZmqPubRawBlock string
	ZmqPubRawTx    string
}

// NewBitcoinNode sets up a fresh bitcoind data dir with newly picked
// ports. The daemon is not started yet.
func NewBitcoinNode(dataDir string, id int) (*BitcoinNode, error) {
	rpcPort, err := GetFreePort()
	if err != nil {
		return nil, err
	}

	zmqBlockPort, err := GetFreePort()
	if err != nil {
		return nil, err
	}

	zmqTxPort, err := GetFreePort()
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(dataDir, os.ModeDir|os.ModePerm)
	if err != nil {
		return nil, err
	}

	config := map[string]string{}
	for k, v := range BITCOIND_CONFIG {
		config[k] = v
	}
	config["zmqpubrawblock"] = fmt.Sprintf("tcp://127.0.0.1:%d", zmqBlockPort)
	config["zmqpubrawtx"] = fmt.Sprintf("tcp://127.0.0.1:%d", zmqTxPort)

	regtestConfig := map[string]string{"rpcport": strconv.Itoa(rpcPort)}
	configFile := filepath.Join(dataDir, "bitcoin.conf")
	err = WriteConfig(configFile, config, regtestConfig, "regtest")
	if err != nil {
		return nil, fmt.Errorf("WriteConfig() %w", err)
	}

	return newBitcoinNode(dataDir, configFile, id)
}

// RestoreBitcoinNode rebuilds the handle for a persisted bitcoind data
// dir, reusing the ports recorded in its config file.
func RestoreBitcoinNode(dataDir string, id int) (*BitcoinNode, error) {
	configFile := filepath.Join(dataDir, "bitcoin.conf")
	if _, err := os.Stat(configFile); err != nil {
		return nil, fmt.Errorf("os.Stat() %w", err)
	}
	return newBitcoinNode(dataDir, configFile, id)
}

func newBitcoinNode(dataDir, configFile string, id int) (*BitcoinNode, error) {
	conf, err := ReadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("ReadConfig() %w", err)
	}

	rpcPort, err := strconv.Atoi(conf["rpcport"])
	if err != nil {
		return nil, fmt.Errorf("no rpcport in %s", configFile)
	}

	cmdLine := []string{
		"bitcoind",
		fmt.Sprintf("-datadir=%s", dataDir),
		"-printtoconsole",
		"-logtimestamps",
		"-nowallet",
		"-addresstype=bech32",
	}

	proxy, err := NewRpcProxy(configFile)
	if err != nil {
		return nil, fmt.Errorf("NewRpcProxy(configFile) %w", err)
	}

	return &BitcoinNode{
		DaemonProcess:  NewDaemonProcess(cmdLine, fmt.Sprintf("bitcoind-%d", id)),
		RpcProxy:       proxy,
		DataDir:        dataDir,
		ConfigFile:     configFile,
		RpcPort:        rpcPort,
		RpcUser:        conf["rpcuser"],
		RpcPassword:    conf["rpcpassword"],
		WalletName:     "lnregtest",
		ZmqPubRawBlock: conf["zmqpubrawblock"],
		ZmqPubRawTx:    conf["zmqpubrawtx"],
	}, nil
}

func (n *BitcoinNode) Run(generateInitialBlocks bool) error {
	err := n.DaemonProcess.Run()
	if err != nil {
		return fmt.Errorf("DaemonProcess.Run() %w", err)
	}

	// Wait for daemon process to be ready
	err = n.WaitForLog("Done loading", TIMEOUT)
	if err != nil {
		return err
	}

	// Create or reopen the mining wallet.
	_, err = n.Call("createwallet", n.WalletName)
	if err != nil {
		_, err = n.Call("loadwallet", n.WalletName)
		if err != nil {
			return fmt.Errorf("can not load wallet: %w", err)
		}
	}

	if !generateInitialBlocks {
		return nil
	}

	// Coinbase outputs need 100 confirmations before they are
	// spendable, so mine past that.
	blocks, err := n.BlockCount()
	if err != nil {
		return err
	}

	if blocks < 101 {
		return n.GenerateBlocks(101 - blocks)
	}
	return nil
}

func (n *BitcoinNode) Stop() error {
	_, err := n.Call("stop")
	if err != nil {
		n.Kill()
		return nil
	}
	if n.Cmd != nil {
		n.Cmd.Wait()
	}
	return nil
}

func (n *BitcoinNode) BlockCount() (int, error) {
	r, err := n.Rpc.Call("getblockcount")
	if err != nil {
		return 0, fmt.Errorf("Call(\"getblockcount\") %w", err)
	}

	count, err := r.GetInt()
	if err != nil {
		return 0, fmt.Errorf("GetInt() %w", err)
	}
	return int(count), nil
}

func (n *BitcoinNode) GenerateBlocks(b int) error {
	r, err := n.Rpc.Call("getnewaddress")
	if err != nil {
		return fmt.Errorf("getnewaddress %w", err)
	}

	address, err := r.GetString()
	if err != nil {
		return fmt.Errorf("GetString() %w", err)
	}

	_, err = n.Rpc.Call("generatetoaddress", b, address)
	if err != nil {
		return fmt.Errorf("Call(\"generatetoaddress\") %w", err)
	}
	return nil
}

// SendToAddress sends amount from the mining wallet to addr.
func (n *BitcoinNode) SendToAddress(addr string, amount btcutil.Amount) (string, error) {
	r, err := n.Rpc.Call("sendtoaddress", addr, amount.ToBTC())
	if err != nil {
		return "", fmt.Errorf("sendtoaddress %w", err)
	}

	txID, err := r.GetString()
	if err != nil {
		return "", fmt.Errorf("GetString() %w", err)
	}
	return txID, nil
}
