package cluster

import (
	"net"
	"strconv"
	"strings"
)

// ServerInfo identifies a cluster member. It is a value type; ServerID is
// unique across the cluster.
type ServerInfo struct {
	ServerID       string `json:"server_id" yaml:"id"`
	Address        string `json:"address" yaml:"address"`
	ClientPort     int    `json:"client_port" yaml:"client_port"`
	ManagementPort int    `json:"management_port" yaml:"management_port"`
}

// ManagementAddr returns host:port of the server's management endpoint
func (s ServerInfo) ManagementAddr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.ManagementPort))
}

// ClientAddr returns host:port of the server's client endpoint
func (s ServerInfo) ClientAddr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.ClientPort))
}

func (s ServerInfo) String() string {
	return s.ServerID + "@" + s.ManagementAddr()
}

// ComparePriority orders server ids cluster-wide. It returns a positive
// number when a is senior to b, negative when junior and 0 when equal.
// Every process must use the same order.
func ComparePriority(a, b string) int {
	return strings.Compare(a, b)
}

// IsSenior reports whether server id a outranks b
func IsSenior(a, b string) bool {
	return ComparePriority(a, b) > 0
}
