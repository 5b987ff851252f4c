package progress

func setupSignals() {}
