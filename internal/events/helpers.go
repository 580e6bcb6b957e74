package events

import (
	"encoding/json"
	"fmt"
)

// SetTaskData sets the Data field with TaskData in a type-safe way.
func (e *Event) SetTaskData(data TaskData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert TaskData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetTaskData retrieves TaskData from the Data field.
func (e *Event) GetTaskData() (*TaskData, error) {
	var data TaskData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse TaskData: %w", err)
	}
	return &data, nil
}

// SetGateData sets the Data field with GateData in a type-safe way.
func (e *Event) SetGateData(data GateData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert GateData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetGateData retrieves GateData from the Data field.
func (e *Event) GetGateData() (*GateData, error) {
	var data GateData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse GateData: %w", err)
	}
	return &data, nil
}

// SetCommitData sets the Data field with CommitData in a type-safe way.
func (e *Event) SetCommitData(data CommitData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert CommitData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetCommitData retrieves CommitData from the Data field.
func (e *Event) GetCommitData() (*CommitData, error) {
	var data CommitData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse CommitData: %w", err)
	}
	return &data, nil
}

// SetRevertData sets the Data field with RevertData in a type-safe way.
func (e *Event) SetRevertData(data RevertData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert RevertData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetRevertData retrieves RevertData from the Data field.
func (e *Event) GetRevertData() (*RevertData, error) {
	var data RevertData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse RevertData: %w", err)
	}
	return &data, nil
}

// SetReEntryData sets the Data field with ReEntryData in a type-safe way.
func (e *Event) SetReEntryData(data ReEntryData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ReEntryData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetReEntryData retrieves ReEntryData from the Data field.
func (e *Event) GetReEntryData() (*ReEntryData, error) {
	var data ReEntryData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ReEntryData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
