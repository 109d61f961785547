// Package gameserver orchestrates live sessions: it owns the code→session
// registry, routes inbound real-time events, drives timers and respawns, and
// hands finished matches to the settlement collaborators.
package gameserver

// Inbound message types.
const (
	MsgCreateLobby        = "createLobby"
	MsgJoinLobby          = "joinLobby"
	MsgSendMessage        = "sendMessage"
	MsgUpdateGameSettings = "updateGameSettings"
	MsgStartGame          = "startGame"
	MsgPlayerStake        = "playerStake"
	MsgLeaveLobby         = "leaveLobby"
	MsgJoinGame           = "joinGame"
	MsgPlayerMove         = "playerMove"
	MsgPlayerHealthUpdate = "playerHealthUpdate"
	MsgPlayerShoot        = "playerShoot"
	MsgSendGameMessage    = "sendGameMessage"
)

// Outbound event names produced by the session registry and router. Lobby
// events live in the lobby package.
const (
	EventGameStarted        = "gameStarted"
	EventGameState          = "gameState"
	EventPlayerJoined       = "playerJoined"
	EventPlayerMoved        = "playerMoved"
	EventPlayerHealthUpdate = "playerHealthUpdate"
	EventPlayerShoot        = "playerShoot"
	EventPlayerDefeated     = "playerDefeated"
	EventPlayerRespawned    = "playerRespawned"
	EventGameTimer          = "gameTimer"
	EventLeaderboardUpdate  = "leaderboardUpdate"
	EventReceiveGameMessage = "receiveGameMessage"
	EventGameEnded          = "gameEnded"
	EventPlayerDisconnected = "playerDisconnected"
	EventGameError          = "gameError"
	EventLobbyError         = "lobbyError"
)

// createLobbyPayload is the inbound createLobby body.
type createLobbyPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Loadout    string `json:"loadout"`
}

// joinLobbyPayload is the inbound joinLobby body.
type joinLobbyPayload struct {
	Code       string `json:"code"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Loadout    string `json:"loadout"`
}

// sendMessagePayload is the inbound sendMessage body.
type sendMessagePayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// updateSettingsPayload is the inbound updateGameSettings body.
type updateSettingsPayload struct {
	Code     string             `json:"code"`
	Settings lobbySettingsPatch `json:"settings"`
}

// lobbySettingsPatch mirrors lobby.SettingsPatch on the wire.
type lobbySettingsPatch struct {
	GameTime *int     `json:"gameTime"`
	Map      *string  `json:"map"`
	GameType *string  `json:"gameType"`
	Stake    *float64 `json:"stake"`
}

// startGamePayload is the inbound startGame body.
type startGamePayload struct {
	Code string `json:"code"`
}

// playerStakePayload is the inbound playerStake body.
type playerStakePayload struct {
	Code        string  `json:"code"`
	PlayerID    string  `json:"playerId"`
	StakeAmount float64 `json:"stakeAmount"`
	TxRef       string  `json:"txRef"`
}

// leaveLobbyPayload is the inbound leaveLobby body.
type leaveLobbyPayload struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

// joinGamePayload is the inbound joinGame body.
type joinGamePayload struct {
	GameCode string `json:"gameCode"`
	PlayerID string `json:"playerId"`
}

// playerMovePayload is the inbound playerMove body.
type playerMovePayload struct {
	GameCode string  `json:"gameCode"`
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// healthUpdatePayload is the inbound playerHealthUpdate body.
type healthUpdatePayload struct {
	GameCode  string `json:"gameCode"`
	PlayerID  string `json:"playerId"`
	Health    int    `json:"health"`
	ShooterID string `json:"shooterId"`
	Damage    int    `json:"damage"`
}

// playerShootPayload is the inbound playerShoot body, echoed verbatim to the
// session group.
type playerShootPayload struct {
	GameCode string  `json:"gameCode"`
	PlayerID string  `json:"playerId"`
	StartX   float64 `json:"startX"`
	StartY   float64 `json:"startY"`
	TargetX  float64 `json:"targetX"`
	TargetY  float64 `json:"targetY"`
	Damage   int     `json:"damage"`
}

// gameMessagePayload is the inbound sendGameMessage body.
type gameMessagePayload struct {
	GameCode   string `json:"gameCode"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Text       string `json:"text"`
}
