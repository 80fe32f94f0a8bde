package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract interfaces are fixed by the deployed contracts; only the slice of
// the ABI this client actually touches is declared here.

const vaultFactoryABIJSON = `[
	{"type":"function","name":"vaultOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"createVault","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"VaultCreated","anonymous":false,"inputs":[{"name":"owner","type":"address","indexed":true},{"name":"vault","type":"address","indexed":false}]}
]`

const vaultABIJSON = `[
	{"type":"function","name":"addDocument","stateMutability":"nonpayable","inputs":[{"name":"documentId","type":"bytes32"},{"name":"description","type":"string"},{"name":"keywords","type":"string[]"}],"outputs":[]},
	{"type":"function","name":"removeDocument","stateMutability":"nonpayable","inputs":[{"name":"documentId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"addKeyword","stateMutability":"nonpayable","inputs":[{"name":"documentId","type":"bytes32"},{"name":"keyword","type":"string"}],"outputs":[]},
	{"type":"event","name":"DocumentAdded","anonymous":false,"inputs":[{"name":"documentId","type":"bytes32","indexed":true},{"name":"description","type":"string","indexed":false}]},
	{"type":"event","name":"DocumentRemoved","anonymous":false,"inputs":[{"name":"documentId","type":"bytes32","indexed":true}]},
	{"type":"event","name":"KeywordAdded","anonymous":false,"inputs":[{"name":"documentId","type":"bytes32","indexed":true},{"name":"keyword","type":"string","indexed":false},{"name":"index","type":"uint32","indexed":false}]}
]`

const tokenABIJSON = `[
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"vaultDeposit","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isActiveOwner","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"accessPrice","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"hasAccess","stateMutability":"view","inputs":[{"name":"viewer","type":"address"},{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"setAccessPrice","stateMutability":"nonpayable","inputs":[{"name":"price","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"requestAccess","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"price","type":"uint256"}],"outputs":[]}
]`

var (
	vaultFactoryABI = mustParseABI(vaultFactoryABIJSON)
	vaultABI        = mustParseABI(vaultABIJSON)
	tokenABI        = mustParseABI(tokenABIJSON)
)

func mustParseABI(j string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(j))
	if err != nil {
		panic("ethereum: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
