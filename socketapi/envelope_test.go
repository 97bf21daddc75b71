package socketapi

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeBind(t *testing.T) {

	envelope := NewEnvelope("42", TypePlayRound, &PlayRound{
		SessionID: "abc",
		Round:     3,
		Choice:    ChoiceRock,
	})

	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatal(err)
	}

	decoded := &Envelope{}
	if err := json.Unmarshal(data, decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Cid != "42" || decoded.Type != TypePlayRound {
		t.Errorf("unexpected frame %+v", decoded)
	}

	payload := &PlayRound{}
	if err := decoded.Bind(payload); err != nil {
		t.Fatal(err)
	}
	if payload.SessionID != "abc" || payload.Round != 3 || payload.Choice != ChoiceRock {
		t.Errorf("unexpected payload %+v", payload)
	}

}

func TestBindWithoutPayload(t *testing.T) {

	envelope := NewEnvelope("", TypeAck, nil)

	if err := envelope.Bind(&PlayRound{}); err == nil {
		t.Error("binding an empty payload should fail")
	}

}

func TestNewErrorEnvelope(t *testing.T) {

	envelope := NewErrorEnvelope("7", ErrorInsufficientFunds, "not enough funds")

	if envelope.Type != TypeError || envelope.Cid != "7" {
		t.Errorf("unexpected frame %+v", envelope)
	}

	payload := &Error{}
	if err := envelope.Bind(payload); err != nil {
		t.Fatal(err)
	}
	if payload.Code != ErrorInsufficientFunds || payload.Message != "not enough funds" {
		t.Errorf("unexpected payload %+v", payload)
	}

}
