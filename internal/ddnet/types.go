package ddnet

import (
	"encoding/json"
	"regexp"
)

const (
	unknown     = "unknown"
	defaultSkin = "default"
)

// ServerList is the decoded DDNet master server list.
type ServerList struct {
	Servers []Server
}

type Server struct {
	Addresses []string    `json:"addresses"`
	Location  string      `json:"location"`
	Community string      `json:"community"`
	Info      *ServerInfo `json:"info"`
}

type ServerInfo struct {
	Name    string
	Map     string
	Clients []PlayerClient
}

// PlayerClient is one player entry in a server's client list.
type PlayerClient struct {
	Name  string `json:"name"`
	Clan  string `json:"clan"`
	Score int    `json:"score"`
	Team  int    `json:"team"`
	Afk   bool   `json:"afk"`
	Skin  struct {
		Name string `json:"name"`
	} `json:"skin"`
}

// UnmarshalJSON tolerates a missing map and a non-array clients field, both
// of which show up on third-party servers.
func (i *ServerInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name string `json:"name"`
		Map  *struct {
			Name string `json:"name"`
		} `json:"map"`
		Clients json.RawMessage `json:"clients"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	i.Name = raw.Name
	i.Map = ""
	if raw.Map != nil {
		i.Map = raw.Map.Name
	}

	i.Clients = nil
	if len(raw.Clients) > 0 {
		var clients []json.RawMessage
		if err := json.Unmarshal(raw.Clients, &clients); err == nil {
			for _, c := range clients {
				var client PlayerClient
				if err := json.Unmarshal(c, &client); err == nil {
					i.Clients = append(i.Clients, client)
				}
			}
		}
	}
	return nil
}

// PlayerStatus describes one tracked name and, when online, where it plays.
type PlayerStatus struct {
	Player     string `json:"player"`
	Server     string `json:"server,omitempty"`
	ServerAddr string `json:"serverAddr,omitempty"`
	Map        string `json:"map,omitempty"`
	Location   string `json:"location,omitempty"`
	Score      int    `json:"score"`
	Skin       string `json:"skin,omitempty"`
	Team       int    `json:"team"`
	Afk        string `json:"afk,omitempty"`
	IsOnline   bool   `json:"isOnline"`
}

var addrPattern = regexp.MustCompile(`//([\d.]+:\d+)`)

// ServerAddr extracts "ip:port" from the server's first address.
func (s *Server) ServerAddr() string {
	if len(s.Addresses) == 0 {
		return unknown
	}
	m := addrPattern.FindStringSubmatch(s.Addresses[0])
	if m == nil {
		return unknown
	}
	return m[1]
}
